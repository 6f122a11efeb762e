package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
)

type Postgres struct {
	pool *pgxpool.Pool
	cfg  Config
	log  *logger.Logger
}

func postgresDSN(cfg Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	port := cfg.Port
	if port <= 0 || port == 1433 {
		port = 5432
	}
	q := url.Values{}
	if !cfg.Encrypt {
		q.Set("sslmode", "disable")
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + strconv.Itoa(port),
		Path:     "/" + cfg.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func NewPostgres(ctx context.Context, cfg Config, log *logger.Logger) (*Postgres, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pcfg, err := pgxpool.ParseConfig(postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("catalog: parse postgres dsn: %w", err)
	}
	pcfg.MaxConns = 4
	pcfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: ping postgres: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Postgres{pool: pool, cfg: cfg, log: log.With("client", "PostgresCatalog")}, nil
}

func (p *Postgres) SubjectIDs(ctx context.Context, since *time.Time) ([]string, error) {
	query := listQuery(p.cfg, since != nil, "$1")
	var args []any
	if since != nil {
		args = append(args, *since)
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		if id := normalizeID(raw); id != "" {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: rows: %w", err)
	}
	p.log.Info("subject ids loaded", "count", len(ids), "incremental", since != nil)
	return ids, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
