package cli

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
)

const plainPadding = 3

// PlainTableWriter writes kubectl-style columns without box drawing, for
// piping into grep, awk and cut. Widths ignore ANSI color sequences.
type PlainTableWriter struct {
	headers     []string
	rows        [][]string
	widths      []int
	showHeaders bool
	output      io.Writer
}

// NewPlainTableWriter creates a writer that shows headers by default.
func NewPlainTableWriter(output io.Writer) *PlainTableWriter {
	return &PlainTableWriter{showHeaders: true, output: output}
}

// SetHeaders sets the column headers, upper-cased.
func (w *PlainTableWriter) SetHeaders(headers []string) {
	w.headers = make([]string, len(headers))
	w.widths = make([]int, len(headers))
	for i, h := range headers {
		w.headers[i] = strings.ToUpper(h)
		w.widths[i] = text.RuneWidthWithoutEscSequences(w.headers[i])
	}
}

// SetNoHeaders controls whether to suppress the header row.
func (w *PlainTableWriter) SetNoHeaders(noHeaders bool) {
	w.showHeaders = !noHeaders
}

// AppendRow adds a row, padded or truncated to the header count.
func (w *PlainTableWriter) AppendRow(row []string) {
	cells := make([]string, len(w.headers))
	for i := range cells {
		if i >= len(row) {
			continue
		}
		cells[i] = row[i]
		if n := text.RuneWidthWithoutEscSequences(row[i]); n > w.widths[i] {
			w.widths[i] = n
		}
	}
	w.rows = append(w.rows, cells)
}

// Render writes the table.
func (w *PlainTableWriter) Render() {
	if len(w.headers) == 0 {
		return
	}
	if w.showHeaders {
		w.writeRow(w.headers)
	}
	for _, row := range w.rows {
		w.writeRow(row)
	}
}

func (w *PlainTableWriter) writeRow(row []string) {
	var sb strings.Builder
	for i, cell := range row {
		sb.WriteString(cell)
		if i < len(row)-1 {
			sb.WriteString(strings.Repeat(" ", w.widths[i]-text.RuneWidthWithoutEscSequences(cell)+plainPadding))
		}
	}
	_, _ = io.WriteString(w.output, strings.TrimRight(sb.String(), " ")+"\n")
}
