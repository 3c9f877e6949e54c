package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Confirm asks a yes/no question and returns true only for an explicit yes.
// End of input counts as no.
func Confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Spinner shows activity on a terminal. A disabled Spinner does nothing, so
// callers need no TTY checks of their own.
type Spinner struct {
	s *spinner.Spinner
}

// NewSpinner creates a spinner writing to out. It is a no-op unless enabled.
func NewSpinner(out io.Writer, enabled bool, suffix string) *Spinner {
	if !enabled {
		return &Spinner{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	s.Suffix = " " + suffix
	return &Spinner{s: s}
}

// Start starts the animation.
func (sp *Spinner) Start() {
	if sp.s != nil {
		sp.s.Start()
	}
}

// Update replaces the text next to the spinner.
func (sp *Spinner) Update(suffix string) {
	if sp.s != nil {
		sp.s.Lock()
		sp.s.Suffix = " " + suffix
		sp.s.Unlock()
	}
}

// Stop stops the animation and prints msg, if any, in its place.
func (sp *Spinner) Stop(msg string) {
	if sp.s == nil {
		return
	}
	if msg != "" {
		sp.s.FinalMSG = msg + "\n"
	}
	sp.s.Stop()
}

// Fail stops the animation with a red message.
func (sp *Spinner) Fail(msg string) {
	sp.Stop(text.FgRed.Sprint(msg))
}

// KeyValueTable renders rows as a two column table.
func KeyValueTable(out io.Writer, rows [][2]string) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	for _, r := range rows {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint(r[0]), r[1]})
	}
	t.Render()
}

// Table renders a table with a header row.
func Table(out io.Writer, header []string, rows [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)

	h := make(table.Row, len(header))
	for i, v := range header {
		h[i] = text.FgHiCyan.Sprint(v)
	}
	t.AppendHeader(h)
	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = v
		}
		t.AppendRow(row)
	}
	t.Render()
}

// FormatBytes formats n using binary units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Success, Warning and Failure color status words the way the rest of the
// CLI does.
func Success(s string) string { return text.FgGreen.Sprint(s) }
func Warning(s string) string { return text.FgYellow.Sprint(s) }
func Failure(s string) string { return text.FgRed.Sprint(s) }
