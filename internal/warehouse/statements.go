package warehouse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/world-population-etl/internal/population"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// InsertColumns are the record columns written by InsertStatement, in argument order.
var InsertColumns = []string{"Region", "Density", "Population", "MostPopCountry", "MostPopCity"}

// ValidateTable rejects names that cannot be interpolated into SQL as bare identifiers.
func ValidateTable(table string) error {
	if !validTableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

// InsertStatement builds one multi-row INSERT for n records. placeholder maps the
// 1-based argument position to the driver's bind syntax.
func InsertStatement(table string, n int, placeholder func(pos int) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(InsertColumns, ", "))
	pos := 1
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range InsertColumns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(placeholder(pos))
			pos++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// InsertArgs flattens records into the argument order of InsertStatement.
func InsertArgs(records []population.Record) []any {
	args := make([]any, 0, len(records)*len(InsertColumns))
	for _, r := range records {
		args = append(args, r.Region, r.Density, r.Population, r.MostPopCountry, r.MostPopCity)
	}
	return args
}
