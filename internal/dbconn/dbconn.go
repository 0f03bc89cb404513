// Package dbconn turns the shared database CLI flags into a storage.Config.
package dbconn

import (
	"flag"
	"fmt"
	"net/url"

	"parleretl/internal/storage"
)

// Params carries the database connection flags every database-facing command
// shares.
type Params struct {
	Kind     string
	Host     string
	Port     int
	Username string
	Password string
	DBName   string
}

// BindFlags registers the shared connection flags on fs.
func (p *Params) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&p.Kind, "storage", "postgres", "storage backend: postgres, sqlite or mssql")
	fs.StringVar(&p.Host, "host", "localhost", "database host")
	fs.IntVar(&p.Port, "port", 0, "database port (0 = backend default)")
	fs.StringVar(&p.Username, "username", "", "database user")
	fs.StringVar(&p.Password, "password", "", "database password")
	fs.StringVar(&p.DBName, "dbname", "", "database name (sqlite: database file path)")
}

// Config validates the parameters and assembles the backend DSN.
func (p Params) Config() (storage.Config, error) {
	if p.DBName == "" {
		return storage.Config{}, fmt.Errorf("missing -dbname")
	}

	switch p.Kind {
	case "postgres":
		return storage.Config{Kind: p.Kind, DSN: p.urlDSN("postgres", 5432)}, nil
	case "mssql":
		return storage.Config{Kind: p.Kind, DSN: p.mssqlDSN()}, nil
	case "sqlite":
		// The database file path is the whole DSN.
		return storage.Config{Kind: p.Kind, DSN: p.DBName}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage backend %q", p.Kind)
	}
}

// urlDSN builds a URL-style DSN, escaping credentials properly.
func (p Params) urlDSN(scheme string, defaultPort int) string {
	port := p.Port
	if port == 0 {
		port = defaultPort
	}

	u := url.URL{
		Scheme: scheme,
		Host:   fmt.Sprintf("%s:%d", p.Host, port),
		Path:   "/" + p.DBName,
	}
	if p.Username != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.Username, p.Password)
		} else {
			u.User = url.User(p.Username)
		}
	}
	return u.String()
}

func (p Params) mssqlDSN() string {
	port := p.Port
	if port == 0 {
		port = 1433
	}

	u := url.URL{
		Scheme:   "sqlserver",
		Host:     fmt.Sprintf("%s:%d", p.Host, port),
		RawQuery: url.Values{"database": []string{p.DBName}}.Encode(),
	}
	if p.Username != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.Username, p.Password)
		} else {
			u.User = url.User(p.Username)
		}
	}
	return u.String()
}
