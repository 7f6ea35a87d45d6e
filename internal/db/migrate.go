package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ApplyMigrations runs every *.sql file under dir/<dialect> that is not yet
// recorded in schema_migrations, in lexical order.
func ApplyMigrations(sqdb *sql.DB, d Dialect, dir string) error {
	if _, err := sqdb.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version VARCHAR(255) PRIMARY KEY, applied_at VARCHAR(40) NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, d.MigrationsSubdir(), "*.sql"))
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)
	for _, path := range files {
		version := filepath.Base(path)
		var seen int
		if err := sqdb.QueryRow(Rebind(d, `SELECT COUNT(1) FROM schema_migrations WHERE version=?`), version).Scan(&seen); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if seen > 0 {
			continue
		}
		if err := ApplyMigrationFile(sqdb, path); err != nil {
			return err
		}
		if _, err := sqdb.Exec(Rebind(d, `INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`), version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}
	return nil
}

// ApplyMigrationFile executes each statement of a migration file. Statements
// are split on ';' at line ends, so migrations must not embed that sequence
// inside literals.
func ApplyMigrationFile(sqdb *sql.DB, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	for _, stmt := range splitStatements(string(b)) {
		if _, err := sqdb.Exec(stmt); err != nil && !isDuplicateErr(err) {
			return fmt.Errorf("apply migration %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func splitStatements(src string) []string {
	var out []string
	var cur strings.Builder
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(cur.String()); stmt != "" {
				out = append(out, strings.TrimSuffix(stmt, ";"))
			}
			cur.Reset()
		}
	}
	if stmt := strings.TrimSpace(cur.String()); stmt != "" {
		out = append(out, stmt)
	}
	return out
}

func isDuplicateErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") ||
		strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate key name")
}
