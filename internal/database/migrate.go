package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// Migration files are append-only once shipped: never edit a shipped file,
// add a new one that supersedes it. Every statement must be idempotent
// (CREATE TABLE IF NOT EXISTS, guarded ALTERs) so a reconciliation run against
// a database in unknown state is safe.
//
//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies all pending migrations in filename order.
// Applied versions are tracked in schema_migrations; re-running is a no-op.
func (db *DB) Migrate() error {
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		version, err := migrationVersion(name)
		if err != nil {
			return err
		}

		var applied int
		err = db.conn.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&applied)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		err = WithTransaction(db.conn, func(tx *sql.Tx) error {
			if _, err := tx.Exec(string(content)); err != nil {
				// Guarded ALTERs can still trip on re-applied columns when the
				// tracking table was lost; treat those as already applied.
				errStr := err.Error()
				if strings.Contains(errStr, "duplicate column") ||
					strings.Contains(errStr, "already exists") {
					return nil
				}
				return fmt.Errorf("failed to execute migration %s: %w", name, err)
			}
			if _, err := tx.Exec(
				"INSERT INTO schema_migrations (version, filename) VALUES (?, ?)",
				version, name,
			); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// migrationVersion extracts the numeric prefix from a migration filename
// (e.g. "0002_refdata.sql" -> 2).
func migrationVersion(name string) (int, error) {
	idx := strings.IndexByte(name, '_')
	if idx < 1 {
		return 0, fmt.Errorf("migration %s has no numeric prefix", name)
	}
	version, err := strconv.Atoi(name[:idx])
	if err != nil {
		return 0, fmt.Errorf("migration %s has invalid version prefix: %w", name, err)
	}
	return version, nil
}

// VerifySchema checks that every expected (table, column) pair exists.
// The pre-deploy schema test and startup both run this so a schema drift
// surfaces before the first write, not in the middle of a run.
func (db *DB) VerifySchema(expected map[string][]string) error {
	for table, columns := range expected {
		rows, err := db.conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			return fmt.Errorf("failed to inspect table %s: %w", table, err)
		}

		present := make(map[string]bool)
		for rows.Next() {
			var cid int
			var name, colType string
			var notNull, pk int
			var dfltValue sql.NullString
			if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan table_info for %s: %w", table, err)
			}
			present[name] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("error iterating table_info for %s: %w", table, err)
		}
		rows.Close()

		if len(present) == 0 {
			return fmt.Errorf("table %s does not exist", table)
		}
		for _, col := range columns {
			if !present[col] {
				return fmt.Errorf("table %s is missing column %s", table, col)
			}
		}
	}

	return nil
}
