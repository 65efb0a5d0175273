// Package postgres loads population records into Postgres. It is the local
// development target and mirrors the Snowflake table layout.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/world-population-etl/internal/population"
	"github.com/JakeFAU/world-population-etl/internal/warehouse"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
	ID BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	Region TEXT,
	Density DOUBLE PRECISION,
	Population DOUBLE PRECISION,
	MostPopCountry TEXT,
	MostPopCity TEXT
)`

// Config controls the Postgres connection pool.
type Config struct {
	DSN            string
	Table          string
	MaxConns       int32
	ConnectTimeout time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

type dialFunc func(ctx context.Context, cfg *pgxpool.Config) (pool, error)

func dialPool(ctx context.Context, cfg *pgxpool.Config) (pool, error) {
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Opener connects to Postgres. It implements population.WarehouseOpener.
type Opener struct {
	cfg    Config
	dial   dialFunc
	logger *zap.Logger
}

// NewOpener validates the table name. The DSN is checked on Open so a missing
// value surfaces as a connection error.
func NewOpener(cfg Config, logger *zap.Logger) (*Opener, error) {
	if err := warehouse.ValidateTable(cfg.Table); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Opener{cfg: cfg, dial: dialPool, logger: logger}, nil
}

// Open creates the pool and pings the server.
func (o *Opener) Open(ctx context.Context) (population.Warehouse, error) {
	if o.cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", population.ErrWarehouseConnection)
	}
	poolCfg, err := pgxpool.ParseConfig(o.cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres dsn: %w", population.ErrWarehouseConnection, err)
	}
	if o.cfg.MaxConns > 0 {
		poolCfg.MaxConns = o.cfg.MaxConns
	}
	if o.cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = o.cfg.ConnectTimeout
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ConnectTimeout)
		defer cancel()
	}

	p, err := o.dial(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %w", population.ErrWarehouseConnection, err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: ping postgres: %w", population.ErrWarehouseConnection, err)
	}
	o.logger.Info("connected to postgres",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
	)
	return &Store{pool: p, table: o.cfg.Table}, nil
}

// Store writes records into one Postgres table.
type Store struct {
	pool  pool
	table string
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if err := warehouse.ValidateTable(table); err != nil {
		return nil, err
	}
	return &Store{pool: p, table: table}, nil
}

// EnsureTable creates the destination table when it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(createTableSQL, s.table)); err != nil {
		return fmt.Errorf("%w: create table %s: %w", population.ErrWarehouseExecution, s.table, err)
	}
	return nil
}

// InsertBatch inserts all records with a single statement.
func (s *Store) InsertBatch(ctx context.Context, records []population.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	query := warehouse.InsertStatement(s.table, len(records), func(pos int) string {
		return "$" + strconv.Itoa(pos)
	})
	tag, err := s.pool.Exec(ctx, query, warehouse.InsertArgs(records)...)
	if err != nil {
		return 0, fmt.Errorf("%w: insert into %s: %w", population.ErrWarehouseExecution, s.table, err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
