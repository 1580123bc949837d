// Package archive provides persistence for finished simulation
// sessions.
package archive

import (
	"context"
	"errors"
	"time"

	"github.com/echolabs/echosim/internal/domain"
	"github.com/echolabs/echosim/internal/engine"
)

// ErrNotFound is returned when no archived session has the given id.
var ErrNotFound = errors.New("archive: session not found")

// SessionSummary is one row of a session listing.
type SessionSummary struct {
	SessionID  string              `json:"session_id"`
	State      engine.SessionState `json:"state"`
	StopReason engine.StopReason   `json:"stop_reason,omitempty"`
	Rounds     int                 `json:"rounds"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Repository defines the interface for persisting session exports.
type Repository interface {
	// SaveExport persists a session export, replacing any previous
	// archive of the same session.
	SaveExport(ctx context.Context, export engine.Export) error

	// GetExport retrieves an archived session by id.
	GetExport(ctx context.Context, sessionID string) (engine.Export, error)

	// ListSessions returns summaries of every archived session, newest
	// first.
	ListSessions(ctx context.Context) ([]SessionSummary, error)

	// RoundMetrics returns the per-round metric sequence of a session
	// in round order.
	RoundMetrics(ctx context.Context, sessionID string) ([]domain.EvaluationMetrics, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
