// Package engine drives simulation sessions: the round scheduler that
// fans agent decisions out under a concurrency bound, the session
// lifecycle container, and the controller loop that ties distribution,
// simulation, and evaluation together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/echolabs/echosim/internal/agent"
	"github.com/echolabs/echosim/internal/domain"
	"github.com/echolabs/echosim/internal/evaluate"
	"github.com/echolabs/echosim/internal/feed"
)

const stimulusComments = 5

// RoundResult summarizes one completed round. Agent-level failures are
// tallied here instead of aborting the round.
type RoundResult struct {
	Round           int                       `json:"round"`
	ActionCounts    map[domain.ActionType]int `json:"action_counts"`
	FailedDecisions int                       `json:"failed_decisions"`
	Duration        time.Duration             `json:"duration"`
}

// Scheduler runs one round at a time: it snapshots the store, asks
// every participating agent for a decision concurrently, and applies
// the resulting actions through a single goroutine so the store sees
// one writer per round.
type Scheduler struct {
	store    *feed.Store
	analyzer evaluate.Analyzer
	log      *slog.Logger

	maxConcurrent   int64
	decisionTimeout time.Duration
	allowed         map[domain.ActionType]bool
}

// NewScheduler wires a scheduler to its store and content-analysis
// port. allowed restricts the action types agents may produce; a
// decision outside it degrades to a no-op.
func NewScheduler(store *feed.Store, analyzer evaluate.Analyzer, log *slog.Logger, maxConcurrent int, decisionTimeout time.Duration, allowed []domain.ActionType) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	set := make(map[domain.ActionType]bool, len(allowed)+1)
	for _, t := range allowed {
		set[t] = true
	}
	set[domain.ActionNoOp] = true
	return &Scheduler{
		store:           store,
		analyzer:        analyzer,
		log:             log,
		maxConcurrent:   int64(maxConcurrent),
		decisionTimeout: decisionTimeout,
		allowed:         set,
	}
}

// outcome carries one agent's decision from a worker to the applier.
type outcome struct {
	agent  *agent.Agent
	action domain.Action
	// sentiment of produced content, already computed by the worker so
	// the applier never blocks on the analysis port.
	sentiment float64
	failed    bool
}

// RunRound drives every agent through one decision and applies the
// results. All agents observe the same pre-round stimulus regardless
// of worker pool size, so the set of decisions is independent of how
// the fan-out interleaves. Only a store consistency violation aborts
// the round; everything else degrades to recorded no-ops.
func (s *Scheduler) RunRound(ctx context.Context, post domain.Post, agents []*agent.Agent, round int) (RoundResult, error) {
	start := time.Now()

	snap := s.store.Snapshot()
	stim := agent.Stimulus{
		Post:           post,
		RecentComments: snap.RecentComments(stimulusComments),
		PostLikes:      s.store.Likes(post.ID),
	}

	// One slot per agent: workers never block on send, so they can all
	// finish and the producer can close the channel even when the
	// applier below aborts the round early.
	results := make(chan outcome, len(agents))
	sem := semaphore.NewWeighted(s.maxConcurrent)
	var wg sync.WaitGroup

	go func() {
		for _, ag := range agents {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Context gone; report the remaining agents as failed
				// so the applier still sees one outcome per agent.
				wg.Add(1)
				go func(ag *agent.Agent) {
					defer wg.Done()
					results <- outcome{agent: ag, action: domain.NoOp(ag.Profile().UserID, post.ID, round), failed: true}
				}(ag)
				continue
			}
			wg.Add(1)
			go func(ag *agent.Agent) {
				defer wg.Done()
				defer sem.Release(1)
				results <- s.decide(ctx, ag, stim, round)
			}(ag)
		}
		wg.Wait()
		close(results)
	}()

	res := RoundResult{Round: round, ActionCounts: make(map[domain.ActionType]int)}
	for out := range results {
		if out.failed {
			res.FailedDecisions++
		}
		applied, err := s.apply(out, post.ID, round)
		if err != nil {
			return res, err
		}
		if applied.failed && !out.failed {
			res.FailedDecisions++
		}
		res.ActionCounts[applied.action.Type]++
		out.agent.Observe(applied.action)
	}

	res.Duration = time.Since(start)
	return res, nil
}

// decide runs in a worker goroutine: one bounded decision call plus,
// for content-producing actions, one sentiment call.
func (s *Scheduler) decide(ctx context.Context, ag *agent.Agent, stim agent.Stimulus, round int) outcome {
	userID := ag.Profile().UserID

	act, err := ag.Decide(ctx, stim, round, s.decisionTimeout)
	if err != nil {
		s.log.Warn("agent decision degraded to no-op", "user_id", userID, "round", round, "error", err)
		return outcome{agent: ag, action: domain.NoOp(userID, stim.Post.ID, round), failed: true}
	}
	if !s.allowed[act.Type] {
		s.log.Warn("agent chose a disallowed action", "user_id", userID, "round", round, "action", act.Type)
		return outcome{agent: ag, action: domain.NoOp(userID, stim.Post.ID, round), failed: true}
	}

	out := outcome{agent: ag, action: act}
	if act.Type == domain.ActionComment || act.Type == domain.ActionReply {
		sent, err := s.analyzer.SentimentOf(ctx, act.Content)
		if err != nil {
			s.log.Warn("sentiment analysis failed, recording neutral", "user_id", userID, "round", round, "error", err)
			sent = 0
		}
		out.sentiment = sent
	}
	return out
}

// apply records one outcome in the store. Invalid targets and invalid
// parents are agent-level mistakes and degrade to no-ops; a
// consistency violation is fatal.
func (s *Scheduler) apply(out outcome, postID string, round int) (outcome, error) {
	if _, err := s.store.Apply(out.action, out.sentiment); err != nil {
		if errors.Is(err, feed.ErrConsistency) {
			return out, fmt.Errorf("round %d: %w", round, err)
		}
		if errors.Is(err, feed.ErrNotFound) || errors.Is(err, feed.ErrInvalidParent) {
			s.log.Warn("action rejected by store, recording no-op", "user_id", out.action.UserID, "round", round, "error", err)
			fallback := outcome{agent: out.agent, action: domain.NoOp(out.action.UserID, postID, round), failed: true}
			if _, err := s.store.Apply(fallback.action, 0); err != nil {
				return out, fmt.Errorf("round %d: recording fallback no-op: %w", round, err)
			}
			return fallback, nil
		}
		return out, fmt.Errorf("round %d: %w", round, err)
	}
	return out, nil
}
