package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "pgx"
	MySQL    Dialect = "mysql"
)

// MigrationsSubdir names the per-dialect folder under MIGRATIONS_DIR.
func (d Dialect) MigrationsSubdir() string {
	switch d {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

type Options struct {
	Driver      string
	DSN         string
	Path        string
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// Open connects to the configured database and returns its dialect.
func Open(opts Options) (*sql.DB, Dialect, error) {
	switch Dialect(opts.Driver) {
	case Postgres:
		sqdb, err := openPool("pgx", opts.DSN, opts)
		return sqdb, Postgres, err
	case MySQL:
		sqdb, err := openPool("mysql", mysqlDSN(opts.DSN), opts)
		return sqdb, MySQL, err
	case SQLite, "":
		sqdb, err := OpenSQLite(opts.Path, opts.MaxOpen, opts.MaxIdle, opts.MaxLifetime)
		return sqdb, SQLite, err
	default:
		return nil, "", fmt.Errorf("unsupported db driver %q", opts.Driver)
	}
}

func OpenSQLite(path string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	return openPool("sqlite", dsn, Options{MaxOpen: maxOpen, MaxIdle: maxIdle, MaxLifetime: maxLifetime})
}

func openPool(driverName, dsn string, opts Options) (*sql.DB, error) {
	sqdb, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	sqdb.SetMaxOpenConns(opts.MaxOpen)
	sqdb.SetMaxIdleConns(opts.MaxIdle)
	sqdb.SetConnMaxLifetime(opts.MaxLifetime)
	if err := sqdb.Ping(); err != nil {
		_ = sqdb.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}
	return sqdb, nil
}

// mysqlDSN makes DATETIME columns scan into time.Time and has UPDATE report
// matched rather than changed rows.
func mysqlDSN(dsn string) string {
	for _, param := range []string{"parseTime=true", "clientFoundRows=true"} {
		key := param[:strings.IndexByte(param, '=')+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + param
		} else {
			dsn += "?" + param
		}
	}
	return dsn
}

// Rebind rewrites ? placeholders into the dialect's bind syntax.
func Rebind(d Dialect, query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '\'' {
			inQuote = !inQuote
		}
		if c == '?' && !inQuote {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
