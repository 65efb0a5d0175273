package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/JakeFAU/world-population-etl/internal/population"
)

// XPath matches the table with an XPath class predicate.
type XPath struct {
	classes []string
	expr    string
}

// NewXPath builds an XPath extractor.
func NewXPath(classes []string) *XPath {
	preds := make([]string, 0, len(classes))
	for _, c := range classes {
		preds = append(preds, fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), ' %s ')", c))
	}
	return &XPath{
		classes: classes,
		expr:    "//table[" + strings.Join(preds, " and ") + "]",
	}
}

// Extract mirrors Goquery.Extract.
func (x *XPath) Extract(ctx context.Context, body []byte) ([]population.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extract canceled: %w", err)
	}
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", population.ErrExtraction, err)
	}

	table, err := htmlquery.Query(doc, x.expr)
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %w", population.ErrExtraction, x.expr, err)
	}
	if table == nil {
		return nil, tableNotFound(x.classes)
	}

	trs, err := htmlquery.QueryAll(table, ".//tr")
	if err != nil {
		return nil, fmt.Errorf("%w: query rows: %w", population.ErrExtraction, err)
	}
	rows := make([]population.Row, 0, len(trs))
	for _, tr := range trs {
		tds, err := htmlquery.QueryAll(tr, ".//td")
		if err != nil {
			return nil, fmt.Errorf("%w: query cells: %w", population.ErrExtraction, err)
		}
		row := make(population.Row, 0, len(tds))
		for _, td := range tds {
			row = append(row, strings.TrimSpace(htmlquery.InnerText(td)))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
