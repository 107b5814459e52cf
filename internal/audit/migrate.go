package audit

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// migration is one schema step, applied exactly once and tracked in the
// schema_version table.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "interactions table",
		SQL: `
		CREATE TABLE IF NOT EXISTS interactions (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id      TEXT NOT NULL,
			session_id      TEXT NOT NULL,
			sender_id       TEXT NOT NULL,
			kind            TEXT NOT NULL,
			intent          TEXT DEFAULT '',
			sentiment       TEXT DEFAULT '',
			confidence      REAL DEFAULT 0,
			next_action     TEXT DEFAULT '',
			fallback        INTEGER DEFAULT 0,
			fallback_reason TEXT DEFAULT '',
			send_status     INTEGER DEFAULT 0,
			latency_ms      INTEGER DEFAULT 0,
			created_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_interactions_time ON interactions(created_at);
		`,
	},
	{
		Version:     2,
		Description: "session lookup index",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_id, created_at);`,
	},
}

// SchemaVersion is the version a fully migrated journal reports.
func SchemaVersion() int { return migrations[len(migrations)-1].Version }

// RunMigrations applies every pending migration in its own transaction.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := CurrentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying journal migration", "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_version (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

// CurrentVersion returns the highest applied migration, or 0 for a fresh database.
func CurrentVersion(db *sql.DB) (int, error) {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&name)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("inspect schema: %w", err)
	}

	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}
