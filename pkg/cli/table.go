// Package cli holds output helpers shared by the ifbridge client commands.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Table is a column-aligned writer. The header and its divider are emitted
// on the first Row, so a table without rows prints nothing.
type Table struct {
	w       *tabwriter.Writer
	headers []string
	started bool
}

// NewTable creates a table on stdout with the given column headers.
func NewTable(headers ...string) *Table {
	return NewTableTo(os.Stdout, headers...)
}

// NewTableTo creates a table writing to out.
func NewTableTo(out io.Writer, headers ...string) *Table {
	return &Table{
		w:       tabwriter.NewWriter(out, 0, 0, 2, ' ', 0),
		headers: headers,
	}
}

// Row writes one row. Missing trailing values are rendered as "-".
func (t *Table) Row(values ...string) {
	if !t.started {
		t.started = true
		fmt.Fprintln(t.w, strings.Join(t.headers, "\t"))
		div := make([]string, len(t.headers))
		for i, h := range t.headers {
			div[i] = strings.Repeat("-", len(h))
		}
		fmt.Fprintln(t.w, strings.Join(div, "\t"))
	}
	cells := make([]string, len(t.headers))
	for i := range cells {
		cells[i] = "-"
		if i < len(values) && values[i] != "" {
			cells[i] = values[i]
		}
	}
	fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

// Flush writes buffered rows.
func (t *Table) Flush() {
	if t.started {
		t.w.Flush()
	}
}
