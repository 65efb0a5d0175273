package population

import (
	"errors"
	"fmt"
)

// Error classes returned by the pipeline stages. Callers match them with errors.Is.
var (
	ErrNetwork             = errors.New("network error")
	ErrExtraction          = errors.New("extraction error")
	ErrIO                  = errors.New("io error")
	ErrWarehouseConnection = errors.New("warehouse connection error")
	ErrWarehouseExecution  = errors.New("warehouse execution error")
)

// MalformedRowError reports a row whose width does not match the fixed columns.
type MalformedRowError struct {
	Index int
	Cells int
	Want  int
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row %d: got %d cells, want %d", e.Index, e.Cells, e.Want)
}
