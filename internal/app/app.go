// Package app builds the pipeline and its collaborators from configuration and
// owns the clients that must be released when the command finishes.
package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/world-population-etl/internal/clock"
	"github.com/JakeFAU/world-population-etl/internal/config"
	"github.com/JakeFAU/world-population-etl/internal/extract"
	collyfetcher "github.com/JakeFAU/world-population-etl/internal/fetcher/colly"
	"github.com/JakeFAU/world-population-etl/internal/id/uuid"
	"github.com/JakeFAU/world-population-etl/internal/metrics"
	"github.com/JakeFAU/world-population-etl/internal/normalize"
	"github.com/JakeFAU/world-population-etl/internal/pipeline"
	"github.com/JakeFAU/world-population-etl/internal/population"
	gcppublisher "github.com/JakeFAU/world-population-etl/internal/publisher/pubsub"
	"github.com/JakeFAU/world-population-etl/internal/sink/csvfile"
	gcsstorage "github.com/JakeFAU/world-population-etl/internal/storage/gcs"
	localstorage "github.com/JakeFAU/world-population-etl/internal/storage/local"
	"github.com/JakeFAU/world-population-etl/internal/warehouse/postgres"
	"github.com/JakeFAU/world-population-etl/internal/warehouse/snowflake"
)

// App holds the configured pipeline plus every client that needs closing.
type App struct {
	logger   *zap.Logger
	pipeline *pipeline.Pipeline
	closers  []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// New wires the pipeline described by cfg. The normalized table is rendered to
// out after the load stage; a nil out disables the table.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger}

	extractor, err := extract.New(cfg.Extract.Strategy, cfg.Extract.TableClasses)
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}
	normalizer, err := normalize.New(normalize.Policy(cfg.Normalize.MalformedPolicy), logger)
	if err != nil {
		return nil, fmt.Errorf("init normalizer: %w", err)
	}

	deps := pipeline.Deps{
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Fetch.UserAgent,
			RespectRobots: cfg.Fetch.RespectRobots,
			Timeout:       cfg.Fetch.Timeout,
			MaxBodyBytes:  cfg.Fetch.MaxBodyBytes,
		}),
		Extractor:  extractor,
		Normalizer: normalizer,
		Writer:     csvfile.NewWriter(logger),
		Metrics:    metrics.New(),
		Clock:      clock.System{},
		IDs:        uuid.New(),
		Display:    out,
	}

	if deps.Warehouse, err = newWarehouseOpener(cfg.Warehouse, logger); err != nil {
		return nil, err
	}

	if deps.Artifacts, err = a.newArtifactStore(ctx, cfg.Output); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.PubSubEnabled() {
		pub, err := gcppublisher.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, namedCloser{name: "pubsub", close: pub.Close})
		deps.Publisher = pub
		logger.Info("publishing run summaries", zap.String("topic", cfg.PubSub.TopicName))
	}

	p, err := pipeline.New(pipeline.Config{
		SourceURL:       cfg.Fetch.URL,
		OutputPath:      cfg.Output.Path,
		ArtifactPrefix:  cfg.Output.GCSPrefix,
		WarehouseSource: cfg.Warehouse.Source,
		MetricsGateway:  cfg.Metrics.PushgatewayURL,
		MetricsJob:      cfg.Metrics.Job,
	}, deps, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	a.pipeline = p
	return a, nil
}

// newWarehouseOpener returns nil when loading is disabled. Credentials are not
// checked here: a missing password surfaces as a connection failure at run time.
func newWarehouseOpener(cfg config.WarehouseConfig, logger *zap.Logger) (population.WarehouseOpener, error) {
	if !cfg.Enabled {
		logger.Info("warehouse load disabled")
		return nil, nil
	}
	switch cfg.Driver {
	case "snowflake":
		opener, err := snowflake.NewOpener(snowflake.Config{
			Account:        cfg.Snowflake.Account,
			User:           cfg.Snowflake.User,
			Password:       cfg.Snowflake.Password,
			Warehouse:      cfg.Snowflake.Warehouse,
			Database:       cfg.Snowflake.Database,
			Schema:         cfg.Snowflake.Schema,
			Role:           cfg.Snowflake.Role,
			Table:          cfg.Table,
			ConnectTimeout: cfg.ConnectTimeout,
		}, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("init snowflake opener: %w", err)
		}
		return opener, nil
	case "postgres":
		opener, err := postgres.NewOpener(postgres.Config{
			DSN:            cfg.Postgres.DSN,
			Table:          cfg.Table,
			MaxConns:       cfg.Postgres.MaxConns,
			ConnectTimeout: cfg.ConnectTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init postgres opener: %w", err)
		}
		return opener, nil
	default:
		return nil, fmt.Errorf("unknown warehouse driver %q", cfg.Driver)
	}
}

func (a *App) newArtifactStore(ctx context.Context, cfg config.OutputConfig) (population.ArtifactStore, error) {
	switch {
	case cfg.GCSBucket != "":
		store, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: cfg.GCSBucket}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init gcs artifact store: %w", err)
		}
		a.closers = append(a.closers, namedCloser{name: "gcs", close: store.Close})
		a.logger.Info("uploading artifacts to GCS", zap.String("bucket", cfg.GCSBucket))
		return store, nil
	case cfg.ArchiveDir != "":
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.ArchiveDir})
		if err != nil {
			return nil, fmt.Errorf("init local artifact store: %w", err)
		}
		a.logger.Info("archiving artifacts locally", zap.String("dir", cfg.ArchiveDir))
		return store, nil
	default:
		return nil, nil
	}
}

// Run executes one pipeline run.
func (a *App) Run(ctx context.Context) (population.RunSummary, error) {
	summary, err := a.pipeline.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("run pipeline: %w", err)
	}
	return summary, nil
}

// Close releases every client created by New.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("error closing client", zap.String("client", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
