// Package table collects per-aspect measurement samples as rows for
// offline analysis. An aspect pushes one row per probed point; the
// environment dumps the table as CSV when the aspect finishes.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

type Table struct {
	header []string
	rows   [][]float64
}

func New(columns ...string) *Table {
	return &Table{header: columns}
}

func (t *Table) Push(row ...float64) error {
	if len(row) != len(t.header) {
		return fmt.Errorf("row has %d values, table has %d columns", len(row), len(t.header))
	}
	t.rows = append(t.rows, row)
	return nil
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) Header() []string { return t.header }

func (t *Table) strings() [][]string {
	out := make([][]string, len(t.rows))
	for i, row := range t.rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		out[i] = cells
	}
	return out
}

// WriteCSV emits the header and all rows.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.strings()); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Render pretty-prints the table for log inspection.
func (t *Table) Render(w io.Writer) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(t.header)
	for _, row := range t.strings() {
		tw.Append(row)
	}
	tw.Render()
}

// PrettyDataSize renders a byte count in the largest unit that keeps
// the value above one.
func PrettyDataSize(n uint64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(n)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d%s", n, units[0])
	}
	return fmt.Sprintf("%.1f%s", size, units[i])
}
