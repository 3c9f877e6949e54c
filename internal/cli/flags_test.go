package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFlags_Format(t *testing.T) {
	tests := []struct {
		name         string
		outputFormat string
		wantErr      bool
	}{
		{name: "table", outputFormat: "table"},
		{name: "plain", outputFormat: "plain"},
		{name: "json", outputFormat: "json"},
		{name: "yaml", outputFormat: "yaml"},
		{name: "wide is not supported", outputFormat: "wide", wantErr: true},
		{name: "empty", outputFormat: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := &OutputFlags{OutputFormat: tt.outputFormat}
			format, err := flags.Format()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "unsupported output format")
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, OutputFormat(tt.outputFormat), format)
		})
	}
}

func TestRegisterOutputFlags(t *testing.T) {
	var flags OutputFlags
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	RegisterOutputFlags(cmd, &flags)

	assert.Equal(t, "table", flags.OutputFormat)

	cmd.SetArgs([]string{"-o", "yaml", "--no-headers"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "yaml", flags.OutputFormat)
	assert.True(t, flags.NoHeaders)
}

func TestPrintStructured(t *testing.T) {
	v := struct {
		Channel string `json:"channel" yaml:"channel"`
		Keep    bool   `json:"keepBackup" yaml:"keepBackup"`
	}{"beta", true}

	var buf bytes.Buffer
	require.NoError(t, PrintStructured(&buf, OutputFormatJSON, v))
	assert.JSONEq(t, `{"channel":"beta","keepBackup":true}`, buf.String())

	buf.Reset()
	require.NoError(t, PrintStructured(&buf, OutputFormatYAML, v))
	assert.Equal(t, "channel: beta\nkeepBackup: true\n", buf.String())

	assert.Error(t, PrintStructured(&buf, OutputFormatTable, v))
	assert.True(t, OutputFormatYAML.Structured())
	assert.False(t, OutputFormatPlain.Structured())
}

func TestPrintKeyValues_Plain(t *testing.T) {
	var buf bytes.Buffer
	PrintKeyValues(&buf, OutputFormatPlain, true, [][2]string{{"Current", "2025.11.1"}, {"Latest", "2025.11.2"}})
	assert.Equal(t, "Current   2025.11.1\nLatest    2025.11.2\n", buf.String())
}
