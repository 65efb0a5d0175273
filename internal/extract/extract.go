// Package extract locates the population table in a fetched document and returns
// its data rows. Each strategy is one small adapter over the page structure, so a
// change in the source markup is absorbed here and nowhere else.
package extract

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/world-population-etl/internal/population"
)

// Strategy names accepted by New.
const (
	StrategyGoquery = "goquery"
	StrategyXPath   = "xpath"
)

// New returns the extractor for the named strategy, matching the first table whose
// class list contains every entry in classes.
func New(strategy string, classes []string) (population.Extractor, error) {
	classes = cleanClasses(classes)
	if len(classes) == 0 {
		return nil, fmt.Errorf("at least one table class is required")
	}
	switch strategy {
	case StrategyGoquery, "":
		return NewGoquery(classes), nil
	case StrategyXPath:
		return NewXPath(classes), nil
	default:
		return nil, fmt.Errorf("unknown extract strategy %q", strategy)
	}
}

func cleanClasses(classes []string) []string {
	out := make([]string, 0, len(classes))
	for _, c := range classes {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func tableNotFound(classes []string) error {
	return fmt.Errorf("%w: no table with class %q", population.ErrExtraction, strings.Join(classes, " "))
}
