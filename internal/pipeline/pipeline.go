// Package pipeline runs the fetch, extract, normalize, write and load stages
// in order, passing each stage's output explicitly to the next.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/world-population-etl/internal/clock"
	"github.com/JakeFAU/world-population-etl/internal/display"
	"github.com/JakeFAU/world-population-etl/internal/id/uuid"
	"github.com/JakeFAU/world-population-etl/internal/metrics"
	"github.com/JakeFAU/world-population-etl/internal/normalize"
	"github.com/JakeFAU/world-population-etl/internal/population"
	"github.com/JakeFAU/world-population-etl/internal/sink/csvfile"
	"github.com/JakeFAU/world-population-etl/internal/storage"
	"github.com/JakeFAU/world-population-etl/internal/warehouse"
)

// Stage names used in logs and metrics.
const (
	StageFetch     = "fetch"
	StageExtract   = "extract"
	StageNormalize = "normalize"
	StageWrite     = "write"
	StageUpload    = "upload"
	StageLoad      = "load"
	StagePublish   = "publish"
)

// Normalizer cleans extracted rows.
type Normalizer interface {
	Normalize(rows []population.Row) (normalize.Result, error)
}

// Config carries the per-run settings.
type Config struct {
	SourceURL       string
	OutputPath      string
	ArtifactPrefix  string
	WarehouseSource string
	MetricsGateway  string
	MetricsJob      string
}

// Deps are the collaborators of a run. Fetcher, Extractor, Normalizer and
// Writer are required; a nil Warehouse skips the load stage and the other
// nil fields disable their optional step.
type Deps struct {
	Fetcher    population.Fetcher
	Extractor  population.Extractor
	Normalizer Normalizer
	Writer     population.RecordWriter
	Warehouse  population.WarehouseOpener
	Artifacts  population.ArtifactStore
	Publisher  population.Publisher
	Metrics    *metrics.Recorder
	Clock      population.Clock
	IDs        population.IDGenerator
	Display    io.Writer
}

// Pipeline executes one ETL run per Run call.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New validates the required collaborators and fills defaults.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Normalizer == nil:
		return nil, fmt.Errorf("normalizer is required")
	case deps.Writer == nil:
		return nil, fmt.Errorf("writer is required")
	}
	if cfg.SourceURL == "" || cfg.OutputPath == "" {
		return nil, fmt.Errorf("source url and output path are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: logger}, nil
}

// Run executes every stage once. A fetch, extraction, normalization or write
// failure stops the run. A warehouse connection failure is logged and the run
// continues; a warehouse execution failure is returned after the table has
// been displayed. The summary is filled as far as the run progressed.
func (p *Pipeline) Run(ctx context.Context) (summary population.RunSummary, err error) {
	summary = population.RunSummary{
		StartedAt:  p.deps.Clock.Now(),
		SourceURL:  p.cfg.SourceURL,
		OutputPath: p.cfg.OutputPath,
		Warehouse:  population.WarehouseSkipped,
	}
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return summary, fmt.Errorf("generate run id: %w", err)
	}
	summary.RunID = runID
	logger := p.logger.With(zap.String("run_id", runID))

	defer func() {
		if summary.FinishedAt.IsZero() {
			summary.FinishedAt = p.deps.Clock.Now()
		}
		p.deps.Metrics.ObserveRun(err, summary.FinishedAt)
		if perr := p.deps.Metrics.Push(ctx, p.cfg.MetricsGateway, p.cfg.MetricsJob, runID); perr != nil {
			logger.Warn("failed to push metrics", zap.Error(perr))
		}
		if err != nil {
			logger.Error("run failed", zap.Error(err))
		}
	}()

	logger.Info("run started", zap.String("url", p.cfg.SourceURL))

	var resp population.FetchResponse
	if err = p.stage(logger, StageFetch, func() error {
		var ferr error
		resp, ferr = p.deps.Fetcher.Fetch(ctx, population.FetchRequest{RunID: runID, URL: p.cfg.SourceURL})
		return ferr
	}); err != nil {
		return summary, err
	}
	summary.StatusCode = resp.StatusCode
	p.deps.Metrics.ObserveFetch(p.cfg.SourceURL, resp.StatusCode, len(resp.Body))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("source returned a non-success status",
			zap.Int("status", resp.StatusCode),
			zap.String("url", resp.URL),
		)
	}

	var rows []population.Row
	if err = p.stage(logger, StageExtract, func() error {
		var eerr error
		rows, eerr = p.deps.Extractor.Extract(ctx, resp.Body)
		return eerr
	}); err != nil {
		return summary, err
	}
	summary.RowsExtracted = len(rows)

	var res normalize.Result
	if err = p.stage(logger, StageNormalize, func() error {
		var nerr error
		res, nerr = p.deps.Normalizer.Normalize(rows)
		return nerr
	}); err != nil {
		return summary, err
	}
	summary.Dropped = res.Dropped
	p.deps.Metrics.ObserveRows(len(rows), res.Dropped)
	logger.Info("rows normalized",
		zap.Int("rows", len(rows)),
		zap.Int("records", len(res.Records)),
		zap.Any("dropped", res.Dropped),
	)

	if err = p.stage(logger, StageWrite, func() error {
		return p.deps.Writer.Write(ctx, p.cfg.OutputPath, res.Records)
	}); err != nil {
		return summary, err
	}
	summary.RecordsWritten = len(res.Records)
	p.deps.Metrics.ObserveWritten(len(res.Records))
	logger.Info("csv written", zap.String("path", p.cfg.OutputPath), zap.Int("records", len(res.Records)))

	if p.deps.Artifacts != nil {
		uri, uerr := p.upload(ctx, logger, runID, summary.StartedAt)
		if uerr != nil {
			logger.Warn("artifact upload failed", zap.Error(uerr))
		} else {
			summary.ArtifactURI = uri
		}
	}

	loadErr := p.stage(logger, StageLoad, func() error {
		return p.load(ctx, logger, res.Records, &summary)
	})
	p.deps.Metrics.ObserveLoad(summary.Warehouse, summary.RowsLoaded)

	if p.deps.Display != nil {
		display.Table(p.deps.Display, res.Records)
	}
	if loadErr != nil {
		return summary, loadErr
	}
	summary.FinishedAt = p.deps.Clock.Now()

	if p.deps.Publisher != nil {
		if perr := p.stage(logger, StagePublish, func() error {
			_, e := p.deps.Publisher.Publish(ctx, summary)
			return e
		}); perr != nil {
			logger.Warn("run summary not published", zap.Error(perr))
		}
	}

	logger.Info("run finished",
		zap.Int("rows_extracted", summary.RowsExtracted),
		zap.Int("records_written", summary.RecordsWritten),
		zap.String("warehouse", string(summary.Warehouse)),
		zap.Int64("rows_loaded", summary.RowsLoaded),
	)
	return summary, nil
}

// stage times fn and records the duration.
func (p *Pipeline) stage(logger *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	logger.Debug("stage started", zap.String("stage", name))
	err := fn()
	elapsed := time.Since(start)
	p.deps.Metrics.ObserveStage(name, elapsed)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	logger.Debug("stage finished", zap.String("stage", name), zap.Duration("elapsed", elapsed))
	return nil
}

func (p *Pipeline) upload(ctx context.Context, logger *zap.Logger, runID string, startedAt time.Time) (string, error) {
	var uri string
	err := p.stage(logger, StageUpload, func() error {
		// #nosec G304 -- the output path is operator-supplied configuration.
		f, err := os.Open(p.cfg.OutputPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", p.cfg.OutputPath, err)
		}
		defer f.Close() //nolint:errcheck // read-only handle

		key := storage.ObjectPath(p.cfg.ArtifactPrefix, startedAt, runID, p.cfg.OutputPath)
		uri, err = p.deps.Artifacts.PutObject(ctx, key, csvfile.ContentType, f)
		return err
	})
	if err != nil {
		return "", err
	}
	logger.Info("artifact uploaded", zap.String("uri", uri))
	return uri, nil
}

// load opens the warehouse, creates the table and inserts the configured batch.
// Connection errors only change the summary; the store is closed on every path
// where it was opened.
func (p *Pipeline) load(ctx context.Context, logger *zap.Logger, records []population.Record, summary *population.RunSummary) error {
	if p.deps.Warehouse == nil {
		logger.Info("warehouse load disabled")
		return nil
	}
	wh, err := p.deps.Warehouse.Open(ctx)
	if err != nil {
		if !errors.Is(err, population.ErrWarehouseConnection) {
			err = fmt.Errorf("%w: %w", population.ErrWarehouseConnection, err)
		}
		summary.Warehouse = population.WarehouseConnectionFailed
		logger.Warn("warehouse connection failed; continuing without load", zap.Error(err))
		return nil
	}
	defer func() {
		if cerr := wh.Close(); cerr != nil {
			logger.Warn("failed to close warehouse connection", zap.Error(cerr))
		}
	}()

	if err := wh.EnsureTable(ctx); err != nil {
		return err
	}
	batch := warehouse.SelectBatch(p.cfg.WarehouseSource, records)
	n, err := wh.InsertBatch(ctx, batch)
	if err != nil {
		return err
	}
	summary.Warehouse = population.WarehouseLoaded
	summary.RowsLoaded = n
	logger.Info("warehouse loaded",
		zap.String("source", p.cfg.WarehouseSource),
		zap.Int("batch", len(batch)),
		zap.Int64("rows", n),
	)
	return nil
}
