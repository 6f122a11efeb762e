package app

import (
	"context"
	"fmt"
	"io"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/healthgraph-etl/internal/clients/catalog"
	"github.com/yungbote/healthgraph-etl/internal/data/db"
	"github.com/yungbote/healthgraph-etl/internal/data/runlog"
	"github.com/yungbote/healthgraph-etl/internal/data/watermark"
	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
	"github.com/yungbote/healthgraph-etl/internal/platform/neo4jdb"
)

// Catalog is a closable subject id source.
type Catalog interface {
	io.Closer
	SubjectIDs(ctx context.Context, since *time.Time) ([]string, error)
}

func openNeo4j(ctx context.Context, log *logger.Logger, cfg neo4jdb.Config) (*neo4jdb.Client, error) {
	client, err := neo4jdb.New(ctx, log, cfg)
	if err != nil {
		return nil, fmt.Errorf("init neo4j: %w", err)
	}
	return client, nil
}

func openCatalog(ctx context.Context, log *logger.Logger, cfg catalog.Config) (Catalog, error) {
	switch cfg.Driver {
	case catalog.DriverStatic:
		return catalog.NewStatic(cfg.StaticIDs), nil
	case catalog.DriverPostgres:
		pg, err := catalog.NewPostgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case catalog.DriverSQLServer:
		ss, err := catalog.NewSQLServer(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return ss, nil
	default:
		return nil, fmt.Errorf("init catalog: unknown driver %q", cfg.Driver)
	}
}

// openSQL opens and migrates a bookkeeping database.
func openSQL(log *logger.Logger, cfg db.Config) (*gorm.DB, error) {
	gdb, err := db.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		_ = db.Close(gdb)
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return gdb, nil
}

// openWatermark returns the store and a release func for whatever connection
// backs it.
func openWatermark(ctx context.Context, log *logger.Logger, cfg WatermarkConfig) (watermark.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case WatermarkFile:
		return watermark.NewFileStore(cfg.Path), noop, nil
	case WatermarkSQLite, WatermarkPostgres:
		gdb, err := openSQL(log, db.Config{Driver: cfg.Backend, DSN: cfg.DSN})
		if err != nil {
			return nil, nil, fmt.Errorf("init watermark %s: %w", cfg.Backend, err)
		}
		return watermark.NewGormStore(gdb, cfg.Name), func() error { return db.Close(gdb) }, nil
	case WatermarkRedis:
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("init watermark redis: %w", err)
		}
		return watermark.NewRedisStore(rdb, cfg.Key), rdb.Close, nil
	case WatermarkS3:
		api, err := watermark.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		store, err := watermark.NewS3Store(api, cfg.S3.Bucket, cfg.S3.Key)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	default:
		return nil, nil, fmt.Errorf("init watermark: unknown backend %q", cfg.Backend)
	}
}

// openRunLog returns nil when no run log database is configured.
func openRunLog(log *logger.Logger, cfg db.Config) (*runlog.Repo, func() error, error) {
	if cfg.Driver == "" {
		return nil, func() error { return nil }, nil
	}
	gdb, err := openSQL(log, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init run log: %w", err)
	}
	return runlog.NewRepo(gdb, log), func() error { return db.Close(gdb) }, nil
}
