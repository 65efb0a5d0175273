// Package csvfile writes normalized records to a CSV file and reads them back.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jszwec/csvutil"
	"go.uber.org/zap"

	"github.com/JakeFAU/world-population-etl/internal/population"
)

// ContentType is used when the written file is uploaded as an artifact.
const ContentType = "text/csv; charset=utf-8"

// decimal renders as a plain decimal number instead of csvutil's exponent form.
type decimal float64

func (d decimal) MarshalText() ([]byte, error) {
	return []byte(population.FormatNumber(float64(d))), nil
}

func (d *decimal) UnmarshalText(b []byte) error {
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("parse decimal %q: %w", b, err)
	}
	*d = decimal(v)
	return nil
}

// line is the on-disk layout. Tags match population.Columns.
type line struct {
	Region         string  `csv:"Region"`
	Density        decimal `csv:"Density"`
	Population     decimal `csv:"Population"`
	MostPopCountry string  `csv:"Most Pop Country"`
	MostPopCity    string  `csv:"Most Pop City"`
}

// Writer persists records as CSV. It implements population.RecordWriter.
type Writer struct {
	logger *zap.Logger
}

// NewWriter creates a Writer.
func NewWriter(logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{logger: logger}
}

// Write replaces the file at path with a header row plus one line per record. The
// data goes to a temporary file in the same directory first and is renamed into
// place, so readers never observe a partial file.
func (w *Writer) Write(ctx context.Context, path string, records []population.Record) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: create output dir %s: %w", population.ErrIO, dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", population.ErrIO, err)
	}
	defer func() {
		if err != nil {
			if rmErr := os.Remove(tmp.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				w.logger.Warn("failed to remove temp file", zap.String("path", tmp.Name()), zap.Error(rmErr))
			}
		}
	}()

	if err := encode(tmp, records); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write %s: %w", population.ErrIO, path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync %s: %w", population.ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", population.ErrIO, path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", population.ErrIO, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: rename into %s: %w", population.ErrIO, path, err)
	}
	w.logger.Debug("csv written", zap.String("path", path), zap.Int("records", len(records)))
	return nil
}

func encode(out io.Writer, records []population.Record) error {
	cw := csv.NewWriter(out)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(line{}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, rec := range records {
		if err := enc.Encode(line{
			Region:         rec.Region,
			Density:        decimal(rec.Density),
			Population:     decimal(rec.Population),
			MostPopCountry: rec.MostPopCountry,
			MostPopCity:    rec.MostPopCity,
		}); err != nil {
			return fmt.Errorf("encode record %q: %w", rec.Region, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Read decodes a file produced by Write.
func Read(ctx context.Context, path string) ([]population.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	// #nosec G304 -- the path is operator-supplied configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", population.ErrIO, path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s is empty", population.ErrIO, path)
		}
		return nil, fmt.Errorf("%w: read header of %s: %w", population.ErrIO, path, err)
	}

	var records []population.Record
	for {
		var l line
		if err := dec.Decode(&l); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: decode %s: %w", population.ErrIO, path, err)
		}
		records = append(records, population.Record{
			Region:         l.Region,
			Density:        float64(l.Density),
			Population:     float64(l.Population),
			MostPopCountry: l.MostPopCountry,
			MostPopCity:    l.MostPopCity,
		})
	}
	return records, nil
}
