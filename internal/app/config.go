package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/healthgraph-etl/internal/clients/catalog"
	"github.com/yungbote/healthgraph-etl/internal/clients/provider"
	"github.com/yungbote/healthgraph-etl/internal/data/db"
	"github.com/yungbote/healthgraph-etl/internal/data/watermark"
	"github.com/yungbote/healthgraph-etl/internal/jobs/scheduler"
	"github.com/yungbote/healthgraph-etl/internal/observability"
	"github.com/yungbote/healthgraph-etl/internal/platform/envutil"
	"github.com/yungbote/healthgraph-etl/internal/platform/neo4jdb"
)

const (
	WatermarkFile     = "file"
	WatermarkSQLite   = "sqlite"
	WatermarkPostgres = "postgres"
	WatermarkRedis    = "redis"
	WatermarkS3       = "s3"
)

type Config struct {
	LogMode       string              `yaml:"log_mode"`
	Neo4j         neo4jdb.Config      `yaml:"neo4j"`
	Provider      provider.Config     `yaml:"provider"`
	Catalog       catalog.Config      `yaml:"catalog"`
	Watermark     WatermarkConfig     `yaml:"watermark"`
	RunLog        db.Config           `yaml:"run_log"`
	Scheduler     scheduler.Config    `yaml:"scheduler"`
	Ops           OpsConfig           `yaml:"ops"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type WatermarkConfig struct {
	Backend string `yaml:"backend"`
	// Path is the JSON file for the file backend.
	Path string `yaml:"path"`
	// DSN and Name serve the sqlite and postgres backends.
	DSN  string `yaml:"dsn"`
	Name string `yaml:"name"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Key           string `yaml:"key"`

	S3 watermark.S3Config `yaml:"s3"`
}

type OpsConfig struct {
	Listen string `yaml:"listen"`
	// Schedule is a cron spec; "@every 1h" style is accepted.
	Schedule string `yaml:"schedule"`
}

type ObservabilityConfig struct {
	ServiceName    string `yaml:"service_name"`
	Environment    string `yaml:"environment"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	PushJob        string `yaml:"push_job"`

	Tracing observability.TracingConfig `yaml:"tracing"`
}

func DefaultConfig() Config {
	return Config{
		LogMode: "development",
		Neo4j: neo4jdb.Config{
			URI:      "bolt://localhost:7687",
			User:     "neo4j",
			Database: "neo4j",
			Timeout:  30 * time.Second,
		},
		Provider: provider.DefaultConfig(),
		Catalog:  catalog.DefaultConfig(),
		Watermark: WatermarkConfig{
			Backend: WatermarkFile,
			Path:    "etl_state.json",
			Name:    "default",
			Key:     "healthgraph:watermark",
		},
		Scheduler: scheduler.DefaultConfig(),
		Ops: OpsConfig{
			Listen:   ":8080",
			Schedule: "@every 1h",
		},
		Observability: ObservabilityConfig{
			ServiceName: "healthgraph-etl",
			PushJob:     "healthgraph_etl",
			Tracing:     observability.DefaultTracingConfig(),
		},
	}
}

// LoadConfig layers defaults, an optional YAML file and the environment. An
// empty path falls back to ETL_CONFIG. A .env file in the working directory
// is loaded first when present.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := DefaultConfig()
	if path == "" {
		path = envutil.String("ETL_CONFIG", "")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.Neo4j = neo4jdb.ConfigFromEnv(cfg.Neo4j)

	p := &cfg.Provider
	p.BaseURL = envutil.String("BIGDATA_API_BASE_URL", p.BaseURL)
	p.Timeout = envutil.Duration("PROVIDER_TIMEOUT", p.Timeout)
	p.RPS = envutil.Float("PROVIDER_RPS", p.RPS)
	p.Retries = envutil.Int("PROVIDER_RETRIES", p.Retries)

	c := &cfg.Catalog
	c.Driver = envutil.String("CATALOG_DRIVER", c.Driver)
	c.DSN = envutil.String("CATALOG_DSN", c.DSN)
	c.Host = envutil.String("SQL_HOST", c.Host)
	c.Port = envutil.Int("SQL_PORT", c.Port)
	c.Database = envutil.String("SQL_DATABASE", c.Database)
	c.User = envutil.String("SQL_USER", c.User)
	c.Password = envutil.String("SQL_PASSWORD", c.Password)
	c.Encrypt = envutil.Bool("SQL_ENCRYPT", c.Encrypt)
	c.Table = envutil.String("SQL_AI_PATIENTS_TABLE", c.Table)
	c.IDColumn = envutil.String("SQL_PATIENT_ID_COLUMN", c.IDColumn)
	c.UpdateColumn = envutil.String("SQL_UPDATE_TIME_COLUMN", c.UpdateColumn)
	if ids := envutil.String("CATALOG_STATIC_IDS", ""); ids != "" {
		c.StaticIDs = splitList(ids)
	}

	w := &cfg.Watermark
	w.Backend = envutil.String("WATERMARK_BACKEND", w.Backend)
	w.Path = envutil.String("STATE_FILE_PATH", w.Path)
	w.DSN = envutil.String("WATERMARK_DSN", w.DSN)
	w.Name = envutil.String("WATERMARK_NAME", w.Name)
	w.RedisAddr = envutil.String("REDIS_ADDR", w.RedisAddr)
	w.RedisPassword = envutil.String("REDIS_PASSWORD", w.RedisPassword)
	w.RedisDB = envutil.Int("REDIS_DB", w.RedisDB)
	w.Key = envutil.String("WATERMARK_KEY", w.Key)
	w.S3.Bucket = envutil.String("WATERMARK_S3_BUCKET", w.S3.Bucket)
	w.S3.Key = envutil.String("WATERMARK_S3_KEY", w.S3.Key)
	w.S3.Region = envutil.String("AWS_REGION", w.S3.Region)
	w.S3.Endpoint = envutil.String("WATERMARK_S3_ENDPOINT", w.S3.Endpoint)
	w.S3.PathStyle = envutil.Bool("WATERMARK_S3_PATH_STYLE", w.S3.PathStyle)

	cfg.RunLog.Driver = envutil.String("RUNLOG_DRIVER", cfg.RunLog.Driver)
	cfg.RunLog.DSN = envutil.String("RUNLOG_DSN", cfg.RunLog.DSN)

	s := &cfg.Scheduler
	s.BatchSize = envutil.Int("BATCH_SIZE", s.BatchSize)
	s.MaxWorkers = envutil.Int("MAX_WORKERS", s.MaxWorkers)
	s.RetryTimes = envutil.Int("RETRY_TIMES", s.RetryTimes)
	s.RetryDelay = envutil.Duration("RETRY_DELAY", s.RetryDelay)

	cfg.Ops.Listen = envutil.String("OPS_LISTEN", cfg.Ops.Listen)
	cfg.Ops.Schedule = envutil.String("OPS_SCHEDULE", cfg.Ops.Schedule)

	o := &cfg.Observability
	o.Environment = envutil.String("ENVIRONMENT", o.Environment)
	o.PushgatewayURL = envutil.String("PUSHGATEWAY_URL", o.PushgatewayURL)
	o.PushJob = envutil.String("PUSHGATEWAY_JOB", o.PushJob)
	o.Tracing.Enabled = envutil.Bool("OTEL_ENABLED", o.Tracing.Enabled)
	o.Tracing.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", o.Tracing.Endpoint)
	o.Tracing.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", o.Tracing.Insecure)
	o.Tracing.SampleRatio = envutil.Float("OTEL_SAMPLER_RATIO", o.Tracing.SampleRatio)
	if h := observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")); h != nil {
		o.Tracing.Headers = h
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Neo4j.URI) == "" {
		errs = append(errs, errors.New("config: neo4j uri required"))
	}
	if err := c.Scheduler.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Catalog.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Watermark.Backend {
	case WatermarkFile:
		if c.Watermark.Path == "" {
			errs = append(errs, errors.New("config: watermark path required for file backend"))
		}
	case WatermarkSQLite:
	case WatermarkPostgres:
		if c.Watermark.DSN == "" {
			errs = append(errs, errors.New("config: watermark dsn required for postgres backend"))
		}
	case WatermarkRedis:
		if c.Watermark.RedisAddr == "" {
			errs = append(errs, errors.New("config: redis addr required for redis backend"))
		}
	case WatermarkS3:
		if c.Watermark.S3.Bucket == "" {
			errs = append(errs, errors.New("config: s3 bucket required for s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown watermark backend %q", c.Watermark.Backend))
	}
	return errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
