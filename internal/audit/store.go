package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"wabridge/internal/domain"
)

// Store is a SQLite-backed domain.Journal.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.Journal = (*Store)(nil)

// Open creates the database file and its directory if needed and brings the
// schema up to date.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create journal directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open journal: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Record(ctx context.Context, it domain.Interaction) error {
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions
		 (request_id, session_id, sender_id, kind, intent, sentiment, confidence,
		  next_action, fallback, fallback_reason, send_status, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.RequestID, it.SessionID, it.SenderID, it.Kind, it.Intent, it.Sentiment, it.Confidence,
		it.NextAction, it.Fallback, it.FallbackReason, it.SendStatus, it.LatencyMs, it.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}

// Recent returns the newest interactions first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.Interaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, session_id, sender_id, kind, intent, sentiment, confidence,
		        next_action, fallback, fallback_reason, send_status, latency_ms, created_at
		 FROM interactions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Interaction
	for rows.Next() {
		var it domain.Interaction
		var created int64
		if err := rows.Scan(&it.ID, &it.RequestID, &it.SessionID, &it.SenderID, &it.Kind,
			&it.Intent, &it.Sentiment, &it.Confidence, &it.NextAction, &it.Fallback,
			&it.FallbackReason, &it.SendStatus, &it.LatencyMs, &created); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		it.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, it)
	}
	return out, rows.Err()
}

// Stats summarizes the journal for the status command.
type Stats struct {
	Total     int64
	Fallbacks int64
	Templates int64
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN fallback THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN kind = 'template' THEN 1 ELSE 0 END), 0)
		 FROM interactions`).Scan(&st.Total, &st.Fallbacks, &st.Templates)
	if err != nil {
		return Stats{}, fmt.Errorf("journal stats: %w", err)
	}
	return st, nil
}

// Purge deletes interactions recorded before olderThan.
func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM interactions WHERE created_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge interactions: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
