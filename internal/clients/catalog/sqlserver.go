package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/denisenkom/go-mssqldb"

	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
)

type SQLServer struct {
	db  *sql.DB
	cfg Config
	log *logger.Logger
}

func sqlServerDSN(cfg Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	q := url.Values{}
	q.Set("database", cfg.Database)
	if cfg.Encrypt {
		q.Set("encrypt", "true")
		q.Set("TrustServerCertificate", "true")
	} else {
		q.Set("encrypt", "disable")
	}
	port := cfg.Port
	if port <= 0 {
		port = 1433
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + strconv.Itoa(port),
		RawQuery: q.Encode(),
	}
	return u.String()
}

func NewSQLServer(ctx context.Context, cfg Config, log *logger.Logger) (*SQLServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlserver", sqlServerDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("catalog: open sqlserver: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: ping sqlserver: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SQLServer{db: db, cfg: cfg, log: log.With("client", "SQLServerCatalog")}, nil
}

func (s *SQLServer) SubjectIDs(ctx context.Context, since *time.Time) ([]string, error) {
	query := listQuery(s.cfg, since != nil, "@since")
	var args []any
	if since != nil {
		args = append(args, sql.Named("since", *since))
	}
	s.log.Info("loading subject ids", "incremental", since != nil)

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	s.log.Info("subject ids loaded", "count", len(ids))
	return ids, nil
}

func (s *SQLServer) Close() error { return s.db.Close() }
