// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/world-population-etl/internal/logging"
)

// DefaultSourceURL is the page holding the regional population table.
const DefaultSourceURL = "https://en.wikipedia.org/wiki/World_population"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// secretKeys may only be supplied through the environment.
var secretKeys = []string{
	"warehouse.snowflake.password",
	"warehouse.postgres.dsn",
}

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Logging   logging.Config  `mapstructure:"logging"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
	Output    OutputConfig    `mapstructure:"output"`
	Warehouse WarehouseConfig `mapstructure:"warehouse"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// FetchConfig controls the single HTTP GET against the source page.
type FetchConfig struct {
	URL           string        `mapstructure:"url"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes"`
}

// ExtractConfig selects how the table is located in the document.
type ExtractConfig struct {
	Strategy     string   `mapstructure:"strategy"`
	TableClasses []string `mapstructure:"table_classes"`
}

// NormalizeConfig decides what happens to rows of the wrong width.
type NormalizeConfig struct {
	MalformedPolicy string `mapstructure:"malformed_policy"`
}

// OutputConfig sets the CSV destination and optional artifact copy. GCSBucket
// takes precedence over ArchiveDir.
type OutputConfig struct {
	Path       string `mapstructure:"path"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
	GCSPrefix  string `mapstructure:"gcs_prefix"`
	ArchiveDir string `mapstructure:"archive_dir"`
}

// WarehouseConfig controls the load stage.
type WarehouseConfig struct {
	Enabled        bool            `mapstructure:"enabled"`
	Driver         string          `mapstructure:"driver"`
	Table          string          `mapstructure:"table"`
	Source         string          `mapstructure:"source"`
	ConnectTimeout time.Duration   `mapstructure:"connect_timeout"`
	Snowflake      SnowflakeConfig `mapstructure:"snowflake"`
	Postgres       PostgresConfig  `mapstructure:"postgres"`
}

// SnowflakeConfig holds connection parameters for the Snowflake backend.
type SnowflakeConfig struct {
	Account   string `mapstructure:"account"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	Warehouse string `mapstructure:"warehouse"`
	Database  string `mapstructure:"database"`
	Schema    string `mapstructure:"schema"`
	Role      string `mapstructure:"role"`
}

// PostgresConfig holds connection parameters for the Postgres backend.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig configures the Prometheus push gateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POPETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := v.BindEnv(
		"warehouse.snowflake.password",
		"POPETL_WAREHOUSE_SNOWFLAKE_PASSWORD",
		"SNOWFLAKE_PASSWORD",
	); err != nil {
		return Config{}, fmt.Errorf("bind snowflake password: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		for _, key := range secretKeys {
			if v.InConfig(key) {
				return Config{}, fmt.Errorf("%s must come from the environment, not a config file", key)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("fetch.url", DefaultSourceURL)
	v.SetDefault("fetch.user_agent", "world-population-etl/0.1")
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.max_body_bytes", 10*1024*1024)
	v.SetDefault("extract.strategy", "goquery")
	v.SetDefault("extract.table_classes", []string{"wikitable", "sortable"})
	v.SetDefault("normalize.malformed_policy", "skip")
	v.SetDefault("output.path", "tabla_wikipedia_procesada.csv")
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.gcs_prefix", "exports")
	v.SetDefault("output.archive_dir", "")
	v.SetDefault("warehouse.enabled", true)
	v.SetDefault("warehouse.driver", "snowflake")
	v.SetDefault("warehouse.table", "WorldPopulation")
	v.SetDefault("warehouse.source", "seed")
	v.SetDefault("warehouse.connect_timeout", "30s")
	v.SetDefault("warehouse.snowflake.account", "")
	v.SetDefault("warehouse.snowflake.user", "")
	v.SetDefault("warehouse.snowflake.password", "")
	v.SetDefault("warehouse.snowflake.warehouse", "PIPELINEWAREHOUSE")
	v.SetDefault("warehouse.snowflake.database", "PIPLINER")
	v.SetDefault("warehouse.snowflake.schema", "pipelineschema")
	v.SetDefault("warehouse.snowflake.role", "")
	v.SetDefault("warehouse.postgres.dsn", "")
	v.SetDefault("warehouse.postgres.max_conns", 2)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "world_population_etl")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Fetch.URL) == "" {
		return fmt.Errorf("fetch.url is required")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	switch c.Extract.Strategy {
	case "goquery", "xpath":
	default:
		return fmt.Errorf("extract.strategy must be goquery or xpath, got %q", c.Extract.Strategy)
	}
	if len(c.Extract.TableClasses) == 0 {
		return fmt.Errorf("extract.table_classes must list at least one class")
	}
	switch c.Normalize.MalformedPolicy {
	case "skip", "fail":
	default:
		return fmt.Errorf("normalize.malformed_policy must be skip or fail, got %q", c.Normalize.MalformedPolicy)
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		return fmt.Errorf("output.path is required")
	}
	if !c.Warehouse.Enabled {
		return nil
	}
	switch c.Warehouse.Driver {
	case "snowflake", "postgres":
	default:
		return fmt.Errorf("warehouse.driver must be snowflake or postgres, got %q", c.Warehouse.Driver)
	}
	switch c.Warehouse.Source {
	case "seed", "scraped":
	default:
		return fmt.Errorf("warehouse.source must be seed or scraped, got %q", c.Warehouse.Source)
	}
	if !validTableName.MatchString(c.Warehouse.Table) {
		return fmt.Errorf("warehouse.table %q is not a valid identifier", c.Warehouse.Table)
	}
	return nil
}

// PubSubEnabled reports whether run summaries should be published.
func (c Config) PubSubEnabled() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.TopicName != ""
}
