package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Driver names a database backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

func (d Driver) String() string { return string(d) }

// DetectDriver infers the backend from a connection URL.
// An empty URL selects SQLite so the CLI works without any setup.
func DetectDriver(url string) Driver {
	switch {
	case url == "":
		return DriverSQLite
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"),
		strings.HasSuffix(url, ".db"), strings.HasSuffix(url, ".sqlite"), strings.HasSuffix(url, ".sqlite3"):
		return DriverSQLite
	default:
		return DriverPostgres
	}
}

// Config holds database connection settings.
type Config struct {
	// Driver selects the backend; empty or "auto" detects it from URL.
	Driver Driver
	// URL is the PostgreSQL connection string.
	URL string
	// SQLitePath is the SQLite file, or ":memory:" for an in-memory database.
	SQLitePath string
	// MaxConns caps the PostgreSQL pool size.
	MaxConns int
}

type connector func(ctx context.Context, cfg Config) (Connection, error)

var connectors = map[Driver]connector{}

// RegisterDriver makes a backend available to Open. Driver packages call it from init.
func RegisterDriver(driver Driver, fn func(ctx context.Context, cfg Config) (Connection, error)) {
	connectors[driver] = fn
}

// Open creates a connection for the configured backend.
func Open(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" || driver == "auto" {
		driver = DetectDriver(cfg.URL)
	}
	if driver == DriverSQLite && cfg.SQLitePath == "" {
		cfg.SQLitePath = strings.TrimPrefix(cfg.URL, "sqlite://")
	}

	open, ok := connectors[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	return open(ctx, cfg)
}

// DefaultSQLitePath returns ~/.carevisit/carevisit.db.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".carevisit", "carevisit.db")
}

// EnsureDirectory creates the parent directory of path.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// Rebind rewrites '?' placeholders into the driver's native form.
func Rebind(driver Driver, query string) string {
	if driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
