package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/stdlib"
	sqlite3 "github.com/mattn/go-sqlite3"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Options select the backing store. URL wins over Path when both are set.
type Options struct {
	Path   string
	URL    string
	LogSQL bool
	Logger *slog.Logger
}

// DB is a *sql.DB that knows which SQL dialect it speaks.
type DB struct {
	*sql.DB
	Dialect Dialect
}

func Open(ctx context.Context, opts Options) (*DB, error) {
	dialect, drv, dsn, err := resolve(opts)
	if err != nil {
		return nil, err
	}

	var conn *sql.DB
	if opts.LogSQL {
		connector, err := NewLoggingConnector(drv, dsn, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		conn = sql.OpenDB(connector)
	} else {
		connector, err := connectorFor(drv, dsn)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		conn = sql.OpenDB(connector)
	}

	// One writer at a time; also keeps ":memory:" databases on a single connection.
	if dialect == SQLite {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return &DB{DB: conn, Dialect: dialect}, nil
}

func Close(db *DB) error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// Rebind rewrites '?' placeholders into the dialect's positional form.
func (db *DB) Rebind(query string) string {
	return Rebind(db.Dialect, query)
}

func Rebind(d Dialect, query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func resolve(opts Options) (Dialect, driver.Driver, string, error) {
	if u := strings.TrimSpace(opts.URL); u != "" {
		if !strings.HasPrefix(u, "postgres://") && !strings.HasPrefix(u, "postgresql://") {
			return "", nil, "", fmt.Errorf("unsupported database_url %q (want postgres:// or postgresql://)", u)
		}
		return Postgres, stdlib.GetDefaultDriver(), u, nil
	}
	dsn, err := buildDSN(opts.Path)
	if err != nil {
		return "", nil, "", err
	}
	return SQLite, &sqlite3.SQLiteDriver{}, dsn, nil
}

func connectorFor(drv driver.Driver, dsn string) (driver.Connector, error) {
	if dc, ok := drv.(driver.DriverContext); ok {
		return dc.OpenConnector(dsn)
	}
	return dsnConnector{dsn: dsn, driver: drv}, nil
}

type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c dsnConnector) Connect(context.Context) (driver.Conn, error) { return c.driver.Open(c.dsn) }
func (c dsnConnector) Driver() driver.Driver                        { return c.driver }

func buildDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("database_file is empty")
	}
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on", nil
	}

	plain := strings.TrimPrefix(path, "file:")
	if i := strings.Index(plain, "?"); i >= 0 {
		plain = plain[:i]
	}
	if dir := filepath.Dir(plain); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
