package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/echolabs/echosim/internal/agent"
	"github.com/echolabs/echosim/internal/domain"
	"github.com/echolabs/echosim/internal/feed"
	"github.com/echolabs/echosim/internal/targeting"
)

// SessionState is the lifecycle state of a simulation session.
type SessionState string

const (
	StateIdle            SessionState = "idle"
	StateRoundInProgress SessionState = "round_in_progress"
	StateRoundComplete   SessionState = "round_complete"
	StateTerminated      SessionState = "terminated"
)

// ErrSessionTerminated is returned by mutating operations on a session
// that has already been finalized.
var ErrSessionTerminated = errors.New("engine: session is terminated")

// StopReason records why a session ended.
type StopReason string

const (
	StopRoundBudget     StopReason = "round_budget_exhausted"
	StopMetricFloor     StopReason = "metric_below_floor"
	StopContextCanceled StopReason = "context_canceled"
	StopStoreFailure    StopReason = "store_failure"
)

// RoundRecord is the full account of one completed round: who was
// targeted, what happened, and how it scored.
type RoundRecord struct {
	Round       int                      `json:"round"`
	Targets     []targeting.Target       `json:"targets"`
	Result      RoundResult              `json:"result"`
	Metrics     domain.EvaluationMetrics `json:"metrics"`
	Suggestions []domain.Suggestion      `json:"suggestions,omitempty"`
}

// Session is the lifecycle container for one simulation: a fixed user
// population, one content item, a round budget, and the state the
// rounds accumulate. After Terminate it is read-only.
type Session struct {
	mu sync.RWMutex

	id        string
	post      domain.Post
	agents    []*agent.Agent
	store     *feed.Store
	strategy  *targeting.Strategy
	maxRounds int

	state      SessionState
	round      int
	rounds     []RoundRecord
	stopReason StopReason
	createdAt  time.Time
	endedAt    time.Time
}

// NewSession validates the population and assembles a session in the
// idle state. The post is created in the store at round 0 so every
// agent can reference it from round 1 on.
func NewSession(post domain.Post, agents []*agent.Agent, strategy *targeting.Strategy, maxRounds int) (*Session, error) {
	if len(agents) == 0 {
		return nil, errors.New("engine: session needs at least one user")
	}
	if maxRounds < 1 {
		return nil, fmt.Errorf("engine: max rounds must be positive, got %d", maxRounds)
	}
	seen := make(map[string]bool, len(agents))
	for _, ag := range agents {
		p := ag.Profile()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.UserID] {
			return nil, fmt.Errorf("engine: duplicate user id %s", p.UserID)
		}
		seen[p.UserID] = true
	}

	store := feed.New()
	created := store.CreatePost(post.Title, post.Content, post.Author, 0)

	return &Session{
		id:        "sess_" + uuid.NewString()[:8],
		post:      created,
		agents:    agents,
		store:     store,
		strategy:  strategy,
		maxRounds: maxRounds,
		state:     StateIdle,
		createdAt: time.Now().UTC(),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Post returns the session's content item.
func (s *Session) Post() domain.Post { return s.post }

// Store returns the session's interaction store.
func (s *Session) Store() *feed.Store { return s.store }

// Strategy returns the session's distribution strategy.
func (s *Session) Strategy() *targeting.Strategy { return s.strategy }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Round returns the number of the last completed round.
func (s *Session) Round() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

// Population returns the profiles of every user in the session.
func (s *Session) Population() []domain.UserProfile {
	out := make([]domain.UserProfile, len(s.agents))
	for i, ag := range s.agents {
		out[i] = ag.Profile()
	}
	return out
}

// Agents returns the session's agents, indexable by the target set.
func (s *Session) Agents() []*agent.Agent { return s.agents }

// BeginRound transitions to the in-progress state and returns the
// round number to run. Fails once the session is terminated.
func (s *Session) BeginRound() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return 0, ErrSessionTerminated
	}
	if s.state == StateRoundInProgress {
		return 0, fmt.Errorf("engine: round %d already in progress", s.round+1)
	}
	s.state = StateRoundInProgress
	return s.round + 1, nil
}

// CompleteRound records the round's outcome and transitions back to
// the completed state.
func (s *Session) CompleteRound(rec RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRoundInProgress {
		return fmt.Errorf("engine: no round in progress (state %s)", s.state)
	}
	s.state = StateRoundComplete
	s.round = rec.Round
	s.rounds = append(s.rounds, rec)
	return nil
}

// Terminate finalizes the session. Idempotent; the first reason wins.
func (s *Session) Terminate(reason StopReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return
	}
	s.state = StateTerminated
	s.stopReason = reason
	s.endedAt = time.Now().UTC()
}

// StopReason returns why the session ended, empty while it runs.
func (s *Session) StopReason() StopReason {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopReason
}

// EndedAt returns when the session terminated, zero while it runs.
func (s *Session) EndedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endedAt
}

// Rounds returns a copy of the per-round records so far.
func (s *Session) Rounds() []RoundRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RoundRecord, len(s.rounds))
	copy(out, s.rounds)
	return out
}

// LastMetrics returns the metrics of the most recent round, if any.
func (s *Session) LastMetrics() (domain.EvaluationMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.rounds) == 0 {
		return domain.EvaluationMetrics{}, false
	}
	return s.rounds[len(s.rounds)-1].Metrics, true
}

// Export is the read-only hand-off shape of a finished (or running)
// session: everything the store holds plus the per-round record
// sequence, stable enough to serialize to any interchange format.
type Export struct {
	SessionID  string               `json:"session_id"`
	State      SessionState         `json:"state"`
	StopReason StopReason           `json:"stop_reason,omitempty"`
	Post       domain.Post          `json:"post"`
	Population []domain.UserProfile `json:"population"`
	Feed       *feed.Snapshot       `json:"feed"`
	Rounds     []RoundRecord        `json:"rounds"`
	CreatedAt  time.Time            `json:"created_at"`
	EndedAt    time.Time            `json:"ended_at,omitempty"`
}

// Export captures the session for reporting. Safe to call at any
// point; the snapshot isolates the caller from ongoing rounds.
func (s *Session) Export() Export {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rounds := make([]RoundRecord, len(s.rounds))
	copy(rounds, s.rounds)
	return Export{
		SessionID:  s.id,
		State:      s.state,
		StopReason: s.stopReason,
		Post:       s.post,
		Population: s.Population(),
		Feed:       s.store.Snapshot(),
		Rounds:     rounds,
		CreatedAt:  s.createdAt,
		EndedAt:    s.endedAt,
	}
}
