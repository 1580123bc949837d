package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/echolabs/echosim/internal/domain"
	"github.com/echolabs/echosim/internal/engine"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		stop_reason TEXT,
		rounds INTEGER NOT NULL,
		export_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		ended_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS round_metrics (
		session_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		engagement_rate REAL NOT NULL,
		sentiment_shift REAL NOT NULL,
		opinion_diversity REAL NOT NULL,
		reach INTEGER NOT NULL,
		conversion_rate REAL NOT NULL,
		virality_score REAL NOT NULL,
		PRIMARY KEY (session_id, round)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveExport persists a session export in one transaction so the
// session row and its metric rows never diverge. Concurrent archiving
// can hit SQLITE_BUSY despite WAL; those writes are retried.
func (s *SQLiteStore) SaveExport(ctx context.Context, export engine.Export) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = s.saveExportOnce(ctx, export); !isSQLiteConflict(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return err
}

func (s *SQLiteStore) saveExportOnce(ctx context.Context, export engine.Export) error {
	blob, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var endedAt any
	if !export.EndedAt.IsZero() {
		endedAt = export.EndedAt.Unix()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, state, stop_reason, rounds, export_json, created_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state,
			stop_reason = excluded.stop_reason,
			rounds = excluded.rounds,
			export_json = excluded.export_json,
			ended_at = excluded.ended_at`,
		export.SessionID, string(export.State), string(export.StopReason),
		len(export.Rounds), string(blob), export.CreatedAt.Unix(), endedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", export.SessionID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM round_metrics WHERE session_id = ?`, export.SessionID); err != nil {
		return fmt.Errorf("clear metrics for %s: %w", export.SessionID, err)
	}
	for _, rec := range export.Rounds {
		m := rec.Metrics
		_, err := tx.ExecContext(ctx, `
			INSERT INTO round_metrics
				(session_id, round, engagement_rate, sentiment_shift, opinion_diversity, reach, conversion_rate, virality_score)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			export.SessionID, m.Round, m.EngagementRate, m.SentimentShift,
			m.OpinionDiversity, m.Reach, m.ConversionRate, m.ViralityScore,
		)
		if err != nil {
			return fmt.Errorf("insert metrics for %s round %d: %w", export.SessionID, m.Round, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetExport retrieves an archived session by id.
func (s *SQLiteStore) GetExport(ctx context.Context, sessionID string) (engine.Export, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT export_json FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Export{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return engine.Export{}, fmt.Errorf("query session %s: %w", sessionID, err)
	}

	var export engine.Export
	if err := json.Unmarshal([]byte(blob), &export); err != nil {
		return engine.Export{}, fmt.Errorf("unmarshal export %s: %w", sessionID, err)
	}
	return export, nil
}

// ListSessions returns summaries of every archived session, newest
// first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, state, stop_reason, rounds, created_at
		FROM sessions ORDER BY created_at DESC, session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum       SessionSummary
			state     string
			reason    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&sum.SessionID, &state, &reason, &sum.Rounds, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sum.State = engine.SessionState(state)
		sum.StopReason = engine.StopReason(reason.String)
		sum.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// RoundMetrics returns the per-round metric sequence of a session.
func (s *SQLiteStore) RoundMetrics(ctx context.Context, sessionID string) ([]domain.EvaluationMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT round, engagement_rate, sentiment_shift, opinion_diversity, reach, conversion_rate, virality_score
		FROM round_metrics WHERE session_id = ? ORDER BY round`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query metrics for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []domain.EvaluationMetrics
	for rows.Next() {
		var m domain.EvaluationMetrics
		if err := rows.Scan(&m.Round, &m.EngagementRate, &m.SentimentShift,
			&m.OpinionDiversity, &m.Reach, &m.ConversionRate, &m.ViralityScore); err != nil {
			return nil, fmt.Errorf("scan metrics row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return out, nil
}

// isSQLiteConflict reports whether err is a SQLite concurrency error
// (SQLITE_BUSY or "database is locked") worth retrying.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
