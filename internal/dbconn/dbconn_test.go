package dbconn

import (
	"flag"
	"strings"
	"testing"
)

func TestBindFlagsDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var p Params
	p.BindFlags(fs)

	if err := fs.Parse([]string{"-dbname", "parler"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Kind != "postgres" || p.Host != "localhost" || p.DBName != "parler" {
		t.Fatalf("defaults: %+v", p)
	}
}

func TestConfigPostgres(t *testing.T) {
	p := Params{Kind: "postgres", Host: "db.example.com", Port: 5433, Username: "u", Password: "p@ss word", DBName: "parler"}

	cfg, err := p.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.Kind != "postgres" {
		t.Fatalf("kind: %s", cfg.Kind)
	}
	if !strings.HasPrefix(cfg.DSN, "postgres://u:") || !strings.Contains(cfg.DSN, "db.example.com:5433/parler") {
		t.Fatalf("dsn: %s", cfg.DSN)
	}
	// Credentials with reserved characters must be escaped.
	if strings.Contains(cfg.DSN, "p@ss word") {
		t.Fatalf("password not escaped: %s", cfg.DSN)
	}
}

func TestConfigPostgresDefaultPort(t *testing.T) {
	p := Params{Kind: "postgres", Host: "localhost", DBName: "parler"}
	cfg, err := p.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if !strings.Contains(cfg.DSN, "localhost:5432") {
		t.Fatalf("default port missing: %s", cfg.DSN)
	}
}

func TestConfigSQLiteUsesPath(t *testing.T) {
	p := Params{Kind: "sqlite", DBName: "/tmp/parler.db"}
	cfg, err := p.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.DSN != "/tmp/parler.db" {
		t.Fatalf("dsn: %s", cfg.DSN)
	}
}

func TestConfigMSSQL(t *testing.T) {
	p := Params{Kind: "mssql", Host: "sql.example.com", Username: "sa", Password: "x", DBName: "parler"}
	cfg, err := p.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if !strings.HasPrefix(cfg.DSN, "sqlserver://sa:x@sql.example.com:1433") || !strings.Contains(cfg.DSN, "database=parler") {
		t.Fatalf("dsn: %s", cfg.DSN)
	}
}

func TestConfigErrors(t *testing.T) {
	if _, err := (Params{Kind: "postgres"}).Config(); err == nil {
		t.Fatalf("missing dbname accepted")
	}
	if _, err := (Params{Kind: "oracle", DBName: "x"}).Config(); err == nil {
		t.Fatalf("unknown backend accepted")
	}
}
