package catalog

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestListQuery(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := listQuery(cfg, false, "@since"), "SELECT DISTINCT patient_id FROM ai_patients"; got != want {
		t.Fatalf("full: want=%q got=%q", want, got)
	}
	want := "SELECT DISTINCT patient_id FROM ai_patients WHERE update_time > $1"
	if got := listQuery(cfg, true, "$1"); got != want {
		t.Fatalf("incremental: want=%q got=%q", want, got)
	}
}

func TestValidateRejectsInjectedIdentifiers(t *testing.T) {
	base := DefaultConfig()
	base.Host = "db"
	if err := base.Validate(); err != nil {
		t.Fatalf("default: %v", err)
	}
	for _, bad := range []string{"", "ai_patients; DROP TABLE x", "1abc", "a.b.c", "name--"} {
		cfg := base
		cfg.Table = bad
		if err := cfg.Validate(); err == nil {
			t.Fatalf("table %q: want error", bad)
		}
	}
	cfg := base
	cfg.Table = "dbo.ai_patients"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("schema qualified: %v", err)
	}
	cfg.Driver = "oracle"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown driver: want error")
	}
	cfg = base
	cfg.Host = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("no host or dsn: want error")
	}
}

func TestStaticCopiesIDs(t *testing.T) {
	src := []string{"P1", "P2"}
	s := NewStatic(src)
	src[0] = "changed"
	since := time.Now()
	ids, err := s.SubjectIDs(context.Background(), &since)
	if err != nil || len(ids) != 2 || ids[0] != "P1" {
		t.Fatalf("SubjectIDs: ids=%v err=%v", ids, err)
	}
}

func TestNormalizeID(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{[]byte(" P1 "), "P1"},
		{"P2", "P2"},
		{int64(42), "42"},
	}
	for _, c := range cases {
		if got := normalizeID(c.in); got != c.want {
			t.Fatalf("normalizeID(%v): want=%q got=%q", c.in, c.want, got)
		}
	}
}

func TestSQLServerDSN(t *testing.T) {
	dsn := sqlServerDSN(Config{Host: "10.0.0.5", Port: 1433, Database: "hp", User: "etl", Password: "p@ss"})
	for _, part := range []string{"sqlserver://", "10.0.0.5:1433", "database=hp", "encrypt=disable"} {
		if !strings.Contains(dsn, part) {
			t.Fatalf("dsn %q missing %q", dsn, part)
		}
	}
}

func TestSQLServerIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_MSSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MSSQL_DSN not set")
	}
	cfg := DefaultConfig()
	cfg.DSN = dsn
	cat, err := NewSQLServer(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewSQLServer: %v", err)
	}
	defer cat.Close()
	since := time.Now().Add(-24 * time.Hour)
	if _, err := cat.SubjectIDs(context.Background(), &since); err != nil {
		t.Fatalf("SubjectIDs: %v", err)
	}
}
