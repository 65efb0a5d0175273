// Package snowflake loads population records into a Snowflake table through
// database/sql. It uses the sqlx library for connection handling.
package snowflake

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/JakeFAU/world-population-etl/internal/population"
	"github.com/JakeFAU/world-population-etl/internal/warehouse"
)

const driverName = "snowflake"

const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
	ID INT AUTOINCREMENT PRIMARY KEY,
	Region VARCHAR,
	Density FLOAT,
	Population FLOAT,
	MostPopCountry VARCHAR,
	MostPopCity VARCHAR
)`

// Config carries the account coordinates. Password is expected from the environment.
type Config struct {
	Account        string
	User           string
	Password       string
	Warehouse      string
	Database       string
	Schema         string
	Role           string
	Table          string
	ConnectTimeout time.Duration
}

// Connector opens a database handle. It exists so tests can hand in sqlmock.
type Connector interface {
	Connect(ctx context.Context, driverName, dsn string) (*sqlx.DB, error)
}

// SQLXConnector opens handles with sqlx.Open.
type SQLXConnector struct{}

// Connect opens a handle without verifying it; Opener pings afterwards.
func (SQLXConnector) Connect(_ context.Context, driverName, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	return db, nil
}

// Opener connects to Snowflake. It implements population.WarehouseOpener.
type Opener struct {
	cfg       Config
	connector Connector
	logger    *zap.Logger
}

// NewOpener validates the static parts of cfg.
func NewOpener(cfg Config, connector Connector, logger *zap.Logger) (*Opener, error) {
	if err := warehouse.ValidateTable(cfg.Table); err != nil {
		return nil, err
	}
	if connector == nil {
		connector = SQLXConnector{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Opener{cfg: cfg, connector: connector, logger: logger}, nil
}

// Open builds the DSN, connects and pings. Every failure wraps ErrWarehouseConnection.
func (o *Opener) Open(ctx context.Context) (population.Warehouse, error) {
	if o.cfg.Account == "" || o.cfg.User == "" || o.cfg.Password == "" {
		return nil, fmt.Errorf("%w: snowflake account, user and password are required", population.ErrWarehouseConnection)
	}
	dsn, err := sf.DSN(&sf.Config{
		Account:      o.cfg.Account,
		User:         o.cfg.User,
		Password:     o.cfg.Password,
		Warehouse:    o.cfg.Warehouse,
		Database:     o.cfg.Database,
		Schema:       o.cfg.Schema,
		Role:         o.cfg.Role,
		LoginTimeout: o.cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: build snowflake dsn: %w", population.ErrWarehouseConnection, err)
	}
	store, err := o.connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (o *Opener) connect(ctx context.Context, dsn string) (*Store, error) {
	if o.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ConnectTimeout)
		defer cancel()
	}
	db, err := o.connector.Connect(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to snowflake: %w", population.ErrWarehouseConnection, err)
	}
	if err := db.PingContext(ctx); err != nil {
		if cerr := db.Close(); cerr != nil {
			o.logger.Warn("failed to close snowflake handle after ping error", zap.Error(cerr))
		}
		return nil, fmt.Errorf("%w: failed to ping snowflake: %w", population.ErrWarehouseConnection, err)
	}
	o.logger.Info("connected to snowflake",
		zap.String("account", o.cfg.Account),
		zap.String("database", o.cfg.Database),
		zap.String("schema", o.cfg.Schema),
	)
	return &Store{DB: db, table: o.cfg.Table}, nil
}

// Store writes records into one Snowflake table.
type Store struct {
	DB    *sqlx.DB
	table string
}

// NewStore wraps an existing handle (primarily for testing).
func NewStore(db *sqlx.DB, table string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if err := warehouse.ValidateTable(table); err != nil {
		return nil, err
	}
	return &Store{DB: db, table: table}, nil
}

// EnsureTable creates the destination table when it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf(createTableSQL, s.table)); err != nil {
		return fmt.Errorf("%w: create table %s: %w", population.ErrWarehouseExecution, s.table, err)
	}
	return nil
}

// InsertBatch inserts all records with a single statement.
func (s *Store) InsertBatch(ctx context.Context, records []population.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	query := warehouse.InsertStatement(s.table, len(records), func(int) string { return "?" })
	res, err := s.DB.ExecContext(ctx, query, warehouse.InsertArgs(records)...)
	if err != nil {
		return 0, fmt.Errorf("%w: insert into %s: %w", population.ErrWarehouseExecution, s.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return int64(len(records)), nil //nolint:nilerr // driver may not report affected rows
	}
	return n, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if err := s.DB.Close(); err != nil {
		return fmt.Errorf("failed to close snowflake connection: %w", err)
	}
	return nil
}
