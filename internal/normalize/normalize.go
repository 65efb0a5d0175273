// Package normalize turns extracted table rows into typed population records.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/world-population-etl/internal/population"
)

// Policy decides what happens to a row whose width does not match the columns.
type Policy string

// Supported malformed-row policies.
const (
	PolicySkip Policy = "skip"
	PolicyFail Policy = "fail"
)

const (
	thousandsSeparator = ","
	densitySentinel    = "~0"
	populationSentinel = "None"
)

// Result holds the cleaned records and how many rows were dropped per reason.
type Result struct {
	Records []population.Record
	Dropped map[population.DropReason]int
}

// Normalizer applies the cleaning steps to extracted rows.
type Normalizer struct {
	policy Policy
	logger *zap.Logger
}

// New builds a Normalizer. An empty policy defaults to PolicySkip.
func New(policy Policy, logger *zap.Logger) (*Normalizer, error) {
	switch policy {
	case "":
		policy = PolicySkip
	case PolicySkip, PolicyFail:
	default:
		return nil, fmt.Errorf("unknown malformed row policy %q", policy)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{policy: policy, logger: logger}, nil
}

// Normalize assigns cells positionally to the fixed columns, drops incomplete rows
// and rows without a region, and coerces Density and Population to numbers.
func (n *Normalizer) Normalize(rows []population.Row) (Result, error) {
	res := Result{
		Records: make([]population.Record, 0, len(rows)),
		Dropped: map[population.DropReason]int{},
	}
	want := len(population.Columns)
	for i, row := range rows {
		if len(row) == 0 {
			res.Dropped[population.DropEmptyRow]++
			continue
		}
		if len(row) != want {
			malformed := &population.MalformedRowError{Index: i, Cells: len(row), Want: want}
			if n.policy == PolicyFail {
				return Result{}, malformed
			}
			n.logger.Warn("skipping malformed row", zap.Error(malformed))
			res.Dropped[population.DropMalformed]++
			continue
		}

		region := strings.TrimSpace(row[0])
		if region == "" {
			res.Dropped[population.DropEmptyRegion]++
			continue
		}

		res.Records = append(res.Records, population.Record{
			Region:         region,
			Density:        n.coerce(region, population.ColumnDensity, row[1], densitySentinel),
			Population:     n.coerce(region, population.ColumnPopulation, row[2], populationSentinel),
			MostPopCountry: strings.TrimSpace(row[3]),
			MostPopCity:    strings.TrimSpace(row[4]),
		})
	}
	return res, nil
}

// ParseNumber strips thousands separators, maps a value equal to sentinel to zero,
// and parses the remainder. ok is false when no finite number could be read.
func ParseNumber(raw string, sentinel string) (float64, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, thousandsSeparator, ""))
	if sentinel != "" && s == sentinel {
		s = "0"
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// coerce fills values that are still missing after parsing with zero.
func (n *Normalizer) coerce(region, column, raw, sentinel string) float64 {
	v, ok := ParseNumber(raw, sentinel)
	if !ok {
		n.logger.Debug("non-numeric cell coerced to zero",
			zap.String("region", region),
			zap.String("column", column),
			zap.String("raw", raw),
		)
		return 0
	}
	return v
}
