package population

import (
	"net/http"
	"strconv"
	"time"
)

// Column labels of the normalized table, in positional order.
const (
	ColumnRegion         = "Region"
	ColumnDensity        = "Density"
	ColumnPopulation     = "Population"
	ColumnMostPopCountry = "Most Pop Country"
	ColumnMostPopCity    = "Most Pop City"
)

// Columns lists the normalized table header.
var Columns = []string{
	ColumnRegion,
	ColumnDensity,
	ColumnPopulation,
	ColumnMostPopCountry,
	ColumnMostPopCity,
}

// Row is the trimmed text of the data cells of one table row.
type Row []string

// Record is one cleaned region row.
type Record struct {
	Region         string  `json:"region"`
	Density        float64 `json:"density"`
	Population     float64 `json:"population"`
	MostPopCountry string  `json:"most_pop_country"`
	MostPopCity    string  `json:"most_pop_city"`
}

// Row renders the record back into raw cell text.
func (r Record) Row() Row {
	return Row{
		r.Region,
		FormatNumber(r.Density),
		FormatNumber(r.Population),
		r.MostPopCountry,
		r.MostPopCity,
	}
}

// FormatNumber renders v as a plain decimal without exponent.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FetchRequest captures everything needed to fetch the source page.
type FetchRequest struct {
	RunID   string
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// WarehouseStatus reports what happened during the load stage.
type WarehouseStatus string

// Warehouse outcomes recorded on the run summary.
const (
	WarehouseLoaded           WarehouseStatus = "loaded"
	WarehouseSkipped          WarehouseStatus = "skipped"
	WarehouseConnectionFailed WarehouseStatus = "connection_failed"
)

// DropReason labels why the normalizer discarded a row.
type DropReason string

// Drop reasons counted by the normalizer.
const (
	DropEmptyRow    DropReason = "empty_row"
	DropMalformed   DropReason = "malformed"
	DropEmptyRegion DropReason = "empty_region"
)

// RunSummary is logged, published and returned at the end of each run.
type RunSummary struct {
	RunID          string             `json:"run_id"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
	SourceURL      string             `json:"source_url"`
	StatusCode     int                `json:"status_code"`
	RowsExtracted  int                `json:"rows_extracted"`
	RecordsWritten int                `json:"records_written"`
	Dropped        map[DropReason]int `json:"dropped,omitempty"`
	OutputPath     string             `json:"output_path"`
	ArtifactURI    string             `json:"artifact_uri,omitempty"`
	Warehouse      WarehouseStatus    `json:"warehouse"`
	RowsLoaded     int64              `json:"rows_loaded"`
}
