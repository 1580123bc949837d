// Package agent implements simulated social-media users: an immutable
// profile plus a bounded memory of past interactions, wrapped around
// an external decision port that chooses what the user does each round.
package agent

import (
	"context"
	"errors"

	"github.com/echolabs/echosim/internal/domain"
)

var (
	// ErrDecisionTimeout marks a decision call that exceeded its
	// per-round deadline. The caller degrades the agent to a no-op.
	ErrDecisionTimeout = errors.New("agent: decision timed out")

	// ErrDecision marks any other decision failure. Same degradation.
	ErrDecision = errors.New("agent: decision failed")
)

// Stimulus is what an agent sees when asked to act: the post plus the
// most recent comments from the previous rounds.
type Stimulus struct {
	Post           domain.Post
	RecentComments []domain.Comment
	PostLikes      int
}

// DecisionPort is the external capability that decides what a user
// does. Implementations are injected, never subclassed: the production
// implementation calls a remote oracle, tests use scripted doubles.
type DecisionPort interface {
	Decide(ctx context.Context, profile domain.UserProfile, memory []Observation, stim Stimulus) (domain.Action, error)
}

// Observation is one remembered interaction.
type Observation struct {
	Round    int
	Kind     domain.ActionType
	TargetID string
	Content  string
}
