package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/echolabs/echosim/internal/domain"
)

// Agent binds a user profile and its bounded memory to a decision
// port. The agent holds no concurrency logic of its own.
type Agent struct {
	profile domain.UserProfile
	memory  *Memory
	port    DecisionPort
}

// New creates an agent with the given memory capacity.
func New(profile domain.UserProfile, memoryLength int, port DecisionPort) *Agent {
	return &Agent{
		profile: profile,
		memory:  NewMemory(memoryLength),
		port:    port,
	}
}

// Profile returns the agent's immutable profile.
func (a *Agent) Profile() domain.UserProfile {
	return a.profile
}

// MemoryLen returns the current memory occupancy.
func (a *Agent) MemoryLen() int {
	return a.memory.Len()
}

// Decide asks the decision port what this user does, bounded by the
// given timeout. The returned action is stamped with the user id and
// round. Timeouts and failures are classified so callers can degrade
// them to no-ops without aborting the round.
func (a *Agent) Decide(ctx context.Context, stim Stimulus, round int, timeout time.Duration) (domain.Action, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	act, err := a.port.Decide(ctx, a.profile, a.memory.Recent(), stim)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrDecisionTimeout) {
			return domain.Action{}, fmt.Errorf("user %s: %w", a.profile.UserID, ErrDecisionTimeout)
		}
		return domain.Action{}, fmt.Errorf("user %s: %w: %v", a.profile.UserID, ErrDecision, err)
	}

	act.UserID = a.profile.UserID
	act.Round = round
	if act.Type == "" {
		act.Type = domain.ActionNoOp
	}
	return act, nil
}

// Observe appends an applied action to the agent's memory.
func (a *Agent) Observe(act domain.Action) {
	a.memory.Record(Observation{
		Round:    act.Round,
		Kind:     act.Type,
		TargetID: act.TargetID,
		Content:  act.Content,
	})
}
