package population

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves the source document.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns a document into data rows. Implementations own all knowledge of
// the page structure.
type Extractor interface {
	Extract(ctx context.Context, body []byte) ([]Row, error)
}

// RecordWriter persists normalized records to a path.
type RecordWriter interface {
	Write(ctx context.Context, path string, records []Record) error
}

// ArtifactStore uploads produced files and returns a URI.
type ArtifactStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Warehouse is an open connection to the destination table.
type Warehouse interface {
	EnsureTable(ctx context.Context) error
	InsertBatch(ctx context.Context, records []Record) (int64, error)
	Close() error
}

// WarehouseOpener connects to a warehouse. Connection failures wrap ErrWarehouseConnection.
type WarehouseOpener interface {
	Open(ctx context.Context) (Warehouse, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
