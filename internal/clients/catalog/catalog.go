// Package catalog lists the subject ids a run should process.
package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	DriverSQLServer = "sqlserver"
	DriverPostgres  = "postgres"
	DriverStatic    = "static"
)

type Config struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Encrypt  bool   `yaml:"encrypt"`

	Table        string `yaml:"table"`
	IDColumn     string `yaml:"id_column"`
	UpdateColumn string `yaml:"update_column"`

	// StaticIDs backs the static driver.
	StaticIDs []string `yaml:"static_ids"`
}

func DefaultConfig() Config {
	return Config{
		Driver:       DriverSQLServer,
		Port:         1433,
		Table:        "ai_patients",
		IDColumn:     "patient_id",
		UpdateColumn: "update_time",
	}
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverStatic:
		return nil
	case DriverSQLServer, DriverPostgres:
	default:
		return fmt.Errorf("catalog: unknown driver %q", c.Driver)
	}
	for _, ident := range []string{c.Table, c.IDColumn, c.UpdateColumn} {
		if err := validIdent(ident); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.DSN) == "" && strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("catalog: dsn or host required for %s", c.Driver)
	}
	return nil
}

// identRe admits plain and schema-qualified names. Table and column names
// are interpolated into SQL, so nothing else gets through.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func validIdent(s string) error {
	if !identRe.MatchString(s) {
		return fmt.Errorf("catalog: invalid identifier %q", s)
	}
	return nil
}

// listQuery builds the id query. placeholder is the driver's bind syntax for
// the since parameter.
func listQuery(cfg Config, incremental bool, placeholder string) string {
	q := "SELECT DISTINCT " + cfg.IDColumn + " FROM " + cfg.Table
	if incremental {
		q += " WHERE " + cfg.UpdateColumn + " > " + placeholder
	}
	return q
}

// Static serves a fixed list. The since filter is ignored.
type Static struct {
	ids []string
}

func NewStatic(ids []string) *Static {
	return &Static{ids: append([]string(nil), ids...)}
}

func (s *Static) SubjectIDs(_ context.Context, _ *time.Time) ([]string, error) {
	return append([]string(nil), s.ids...), nil
}

func (s *Static) Close() error { return nil }

func normalizeID(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case []byte:
		return strings.TrimSpace(string(v))
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
