package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the supported output formats for CLI commands.
type OutputFormat string

const (
	// OutputFormatTable renders a boxed, colored table
	OutputFormatTable OutputFormat = "table"
	// OutputFormatPlain renders kubectl-style columns for grep and awk
	OutputFormatPlain OutputFormat = "plain"
	// OutputFormatJSON prints the result as indented JSON
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML prints the result as YAML
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidateOutputFormat validates that the given format string is a supported output format.
func ValidateOutputFormat(format string) error {
	switch OutputFormat(format) {
	case OutputFormatTable, OutputFormatPlain, OutputFormatJSON, OutputFormatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %q (valid: table, plain, json, yaml)", format)
	}
}

// OutputFlags holds the output flag values shared by commands that print a
// result.
type OutputFlags struct {
	// OutputFormat specifies the desired output format (table, plain, json, yaml)
	OutputFormat string
	// NoHeaders suppresses the header row in plain output
	NoHeaders bool
}

// RegisterOutputFlags registers --output/-o and --no-headers on cmd.
func RegisterOutputFlags(cmd *cobra.Command, flags *OutputFlags) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "output", "o", string(OutputFormatTable), "Output format (table, plain, json, yaml)")
	cmd.Flags().BoolVar(&flags.NoHeaders, "no-headers", false, "Suppress header row in plain output")
}

// Format returns the validated output format.
func (f *OutputFlags) Format() (OutputFormat, error) {
	if err := ValidateOutputFormat(f.OutputFormat); err != nil {
		return "", err
	}
	return OutputFormat(f.OutputFormat), nil
}

// Structured reports whether format prints data rather than a table.
func (f OutputFormat) Structured() bool {
	return f == OutputFormatJSON || f == OutputFormatYAML
}

// PrintStructured writes v as JSON or YAML.
func PrintStructured(out io.Writer, format OutputFormat, v interface{}) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to convert to YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// PrintKeyValues renders rows in the table or plain format.
func PrintKeyValues(out io.Writer, format OutputFormat, noHeaders bool, rows [][2]string) {
	if format != OutputFormatPlain {
		KeyValueTable(out, rows)
		return
	}
	tw := NewPlainTableWriter(out)
	tw.SetHeaders([]string{"key", "value"})
	tw.SetNoHeaders(noHeaders)
	for _, r := range rows {
		tw.AppendRow([]string{r[0], r[1]})
	}
	tw.Render()
}

// PrintTable renders header and rows in the table or plain format.
func PrintTable(out io.Writer, format OutputFormat, noHeaders bool, header []string, rows [][]string) {
	if format != OutputFormatPlain {
		Table(out, header, rows)
		return
	}
	tw := NewPlainTableWriter(out)
	tw.SetHeaders(header)
	tw.SetNoHeaders(noHeaders)
	for _, r := range rows {
		tw.AppendRow(r)
	}
	tw.Render()
}
