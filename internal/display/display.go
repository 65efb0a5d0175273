// Package display renders normalized records as a console table.
package display

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/world-population-etl/internal/population"
)

// Table writes records to w using the rounded box style. Numbers are shown as
// plain decimals, the same text the CSV carries.
func Table(w io.Writer, records []population.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	header := make(table.Row, 0, len(population.Columns))
	for _, c := range population.Columns {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for _, rec := range records {
		row := rec.Row()
		t.AppendRow(table.Row{row[0], row[1], row[2], row[3], row[4]})
	}
	t.AppendFooter(table.Row{"", "", "", "Rows", len(records)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: population.ColumnDensity, Align: text.AlignRight},
		{Name: population.ColumnPopulation, Align: text.AlignRight},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
