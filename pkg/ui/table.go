package ui

import (
	"fmt"
	"io"
	"strings"
)

// Table renders aligned columns, used by the ps command
type Table struct {
	headers []string
	rows    [][]string
	palette *Palette
}

// NewTable creates a table with the given column headers
func NewTable(palette *Palette, headers ...string) *Table {
	return &Table{headers: headers, palette: palette}
}

// AddRow appends a row. Missing trailing columns render empty and extra
// columns are printed unaligned.
func (t *Table) AddRow(columns ...string) {
	t.rows = append(t.rows, columns)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table to w
func (t *Table) Render(w io.Writer) error {
	if len(t.headers) == 0 {
		return nil
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, col := range row {
			if i < len(widths) && len(col) > widths[i] {
				widths[i] = len(col)
			}
		}
	}

	var b strings.Builder
	for i, h := range t.headers {
		if i > 0 {
			b.WriteByte(' ')
		}
		// pad outside the escape codes so colored headers stay aligned
		b.WriteString(t.palette.Header.Sprint(h))
		if i < len(t.headers)-1 {
			b.WriteString(strings.Repeat(" ", widths[i]-len(h)))
		}
	}
	b.WriteByte('\n')

	for i, width := range widths {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.Repeat("-", width))
	}
	b.WriteByte('\n')

	for _, row := range t.rows {
		cells := make([]string, 0, len(widths))
		for i := range widths {
			col := ""
			if i < len(row) {
				col = row[i]
			}
			if i == len(widths)-1 && len(row) <= len(widths) {
				cells = append(cells, col)
			} else {
				cells = append(cells, fmt.Sprintf("%-*s", widths[i], col))
			}
		}
		if len(row) > len(widths) {
			cells = append(cells, row[len(widths):]...)
		}
		b.WriteString(strings.TrimRight(strings.Join(cells, " "), " "))
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}
