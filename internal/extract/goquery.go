package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/world-population-etl/internal/population"
)

// Goquery matches the table with a CSS class selector.
type Goquery struct {
	classes  []string
	selector string
}

// NewGoquery builds a CSS-selector extractor.
func NewGoquery(classes []string) *Goquery {
	return &Goquery{
		classes:  classes,
		selector: "table." + strings.Join(classes, "."),
	}
}

// Extract returns one row per tr of the matched table holding the trimmed text of its td cells.
func (g *Goquery) Extract(ctx context.Context, body []byte) ([]population.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extract canceled: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", population.ErrExtraction, err)
	}

	table := doc.Find(g.selector).First()
	if table.Length() == 0 {
		return nil, tableNotFound(g.classes)
	}

	trs := table.Find("tr")
	rows := make([]population.Row, 0, trs.Length())
	trs.Each(func(_ int, tr *goquery.Selection) {
		row := population.Row{}
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			row = append(row, strings.TrimSpace(td.Text()))
		})
		rows = append(rows, row)
	})
	return rows, nil
}
