package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/echolabs/echosim/internal/agent"
	"github.com/echolabs/echosim/internal/domain"
	"github.com/echolabs/echosim/internal/targeting"
)

func matchAllStrategy() *targeting.Strategy {
	return targeting.NewStrategy("all", targeting.CombineSum, targeting.Rule{
		ID:        "everyone",
		Condition: targeting.Threshold{Attr: "activity_level", Op: targeting.CmpGTE, Value: 0},
		Weight:    1.0,
		Active:    true,
	})
}

func newTestSession(t *testing.T, port agent.DecisionPort, maxRounds int, userIDs ...string) *Session {
	t.Helper()
	sess, err := NewSession(
		domain.Post{Title: "t", Content: "c", Author: "author"},
		testAgents(port, userIDs...),
		matchAllStrategy(),
		maxRounds,
	)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess
}

func newTestController(sess *Session, cfg ControllerConfig, sink EventSink) *Controller {
	sched := NewScheduler(sess.Store(), fixedAnalyzer{sentiment: 0.5}, testLog, 4, time.Second, allTypes)
	return NewController(sched, cfg, sink, testLog)
}

// recordingSink collects events for assertions.
type recordingSink struct {
	mu      sync.Mutex
	started []int
	records []RoundRecord
	ended   []StopReason
}

func (s *recordingSink) RoundStarted(_ string, round int, _ []targeting.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, round)
}

func (s *recordingSink) RoundCompleted(_ string, rec RoundRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *recordingSink) SessionEnded(_ string, reason StopReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, reason)
}

func TestRun_ExhaustsRoundBudget(t *testing.T) {
	sess := newTestSession(t, commentPort(), 3, "u1", "u2")
	sink := &recordingSink{}
	ctl := newTestController(sess, ControllerConfig{}, sink)

	if err := ctl.Run(context.Background(), sess); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sess.State() != StateTerminated {
		t.Errorf("Expected terminated session, got %s", sess.State())
	}
	if sess.StopReason() != StopRoundBudget {
		t.Errorf("Expected round budget stop, got %s", sess.StopReason())
	}
	if got := len(sess.Rounds()); got != 3 {
		t.Errorf("Expected 3 round records, got %d", got)
	}
	if len(sink.records) != 3 || len(sink.ended) != 1 {
		t.Errorf("Expected 3 round events and 1 end event, got %d/%d", len(sink.records), len(sink.ended))
	}
	for i, rec := range sess.Rounds() {
		if rec.Round != i+1 {
			t.Errorf("Expected round %d at index %d, got %d", i+1, i, rec.Round)
		}
		if rec.Metrics.EngagementRate != 1.0 {
			t.Errorf("Round %d: expected full engagement, got %v", rec.Round, rec.Metrics.EngagementRate)
		}
	}
}

func TestRun_StopsOnSustainedLowEngagement(t *testing.T) {
	noopPort := fakePort{decide: func(_ string, stim agent.Stimulus) (domain.Action, error) {
		return domain.Action{Type: domain.ActionNoOp, TargetID: stim.Post.ID}, nil
	}}
	sess := newTestSession(t, noopPort, 100, "u1", "u2")
	ctl := newTestController(sess, ControllerConfig{
		StopMetricThreshold:   0.5,
		StopConsecutiveRounds: 2,
	}, nil)

	if err := ctl.Run(context.Background(), sess); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sess.StopReason() != StopMetricFloor {
		t.Errorf("Expected metric floor stop, got %s", sess.StopReason())
	}
	if got := len(sess.Rounds()); got != 2 {
		t.Errorf("Expected exactly 2 rounds before stopping, got %d", got)
	}
}

func TestRun_LowEngagementCounterResets(t *testing.T) {
	// Engagement alternates above and below the floor, so the
	// consecutive counter never reaches 2 and the budget wins.
	var calls atomic.Int64
	port := fakePort{decide: func(_ string, stim agent.Stimulus) (domain.Action, error) {
		if calls.Add(1)%2 == 1 {
			return domain.Action{Type: domain.ActionLike, TargetID: stim.Post.ID}, nil
		}
		return domain.Action{Type: domain.ActionNoOp, TargetID: stim.Post.ID}, nil
	}}
	sess := newTestSession(t, port, 4, "u1")
	ctl := newTestController(sess, ControllerConfig{
		StopMetricThreshold:   0.5,
		StopConsecutiveRounds: 2,
	}, nil)

	if err := ctl.Run(context.Background(), sess); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sess.StopReason() != StopRoundBudget {
		t.Errorf("Expected the round budget to win, got %s", sess.StopReason())
	}
	if got := len(sess.Rounds()); got != 4 {
		t.Errorf("Expected 4 rounds, got %d", got)
	}
}

func TestRun_EmptyWavesAreValidRounds(t *testing.T) {
	sess, err := NewSession(
		domain.Post{Title: "t", Content: "c", Author: "author"},
		testAgents(commentPort(), "u1"),
		targeting.NewStrategy("none", targeting.CombineSum), // no rules match anyone
		3,
	)
	if err != nil {
		t.Fatal(err)
	}
	ctl := newTestController(sess, ControllerConfig{}, nil)
	if err := ctl.Run(context.Background(), sess); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sess.StopReason() != StopRoundBudget {
		t.Errorf("Expected the budget to end the session, got %s", sess.StopReason())
	}
	rounds := sess.Rounds()
	if len(rounds) != 3 {
		t.Fatalf("Expected 3 empty rounds, got %d", len(rounds))
	}
	for _, rec := range rounds {
		if len(rec.Targets) != 0 || rec.Metrics.EngagementRate != 0 || rec.Metrics.Reach != 0 {
			t.Errorf("Round %d: expected an empty round, got %+v", rec.Round, rec)
		}
	}
}

func TestRun_TerminatedSessionIsReadOnly(t *testing.T) {
	sess := newTestSession(t, commentPort(), 1, "u1")
	ctl := newTestController(sess, ControllerConfig{}, nil)
	if err := ctl.Run(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	if _, err := sess.BeginRound(); err != ErrSessionTerminated {
		t.Errorf("Expected ErrSessionTerminated, got %v", err)
	}

	export := sess.Export()
	if export.State != StateTerminated || len(export.Rounds) != 1 {
		t.Errorf("Expected terminated export with 1 round, got %+v", export.State)
	}
	if len(export.Feed.Comments) != 1 {
		t.Errorf("Expected 1 comment in export, got %d", len(export.Feed.Comments))
	}
}

func TestRun_MemoryStaysBounded(t *testing.T) {
	const memoryLength = 3
	agents := []*agent.Agent{
		agent.New(domain.UserProfile{UserID: "u1", ActivityLevel: 0.5}, memoryLength, commentPort()),
	}
	sess, err := NewSession(domain.Post{Title: "t", Content: "c", Author: "author"}, agents, matchAllStrategy(), 10)
	if err != nil {
		t.Fatal(err)
	}
	ctl := newTestController(sess, ControllerConfig{}, nil)
	if err := ctl.Run(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	if got := agents[0].MemoryLen(); got != memoryLength {
		t.Errorf("Expected memory pinned at %d after 10 rounds, got %d", memoryLength, got)
	}
}

func TestRun_RedistributeEvery(t *testing.T) {
	// Rules are edited after the first wave; with RedistributeEvery=2
	// the edit takes effect at round 3, ending the session there.
	sess := newTestSession(t, commentPort(), 4, "u1")
	ctl := newTestController(sess, ControllerConfig{
		RedistributeEvery: 2,
		RoundInterval:     100 * time.Millisecond,
	}, nil)

	done := make(chan error, 1)
	go func() { done <- ctl.Run(context.Background(), sess) }()

	// Drop the matching rule during the pause after round 1.
	deadline := time.After(5 * time.Second)
	for sess.Round() < 1 {
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for round 1")
		case err := <-done:
			t.Fatalf("Run ended early: %v", err)
		case <-time.After(time.Millisecond):
		}
	}
	sess.Strategy().RemoveRule("everyone")

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	rounds := sess.Rounds()
	if len(rounds) != 4 {
		t.Fatalf("Expected the full budget of 4 rounds, got %d", len(rounds))
	}
	// Round 2 still ran on the cached wave; rounds 3 and 4 re-selected
	// and found nobody.
	if len(rounds[1].Targets) != 1 {
		t.Errorf("Expected round 2 to reuse the cached wave, got %d targets", len(rounds[1].Targets))
	}
	if len(rounds[2].Targets) != 0 || len(rounds[3].Targets) != 0 {
		t.Errorf("Expected rounds 3 and 4 to be empty waves, got %d and %d targets",
			len(rounds[2].Targets), len(rounds[3].Targets))
	}
}

func TestNewSession_Validation(t *testing.T) {
	post := domain.Post{Title: "t", Content: "c", Author: "a"}

	if _, err := NewSession(post, nil, matchAllStrategy(), 5); err == nil {
		t.Error("Expected error for empty population")
	}
	if _, err := NewSession(post, testAgents(commentPort(), "u1"), matchAllStrategy(), 0); err == nil {
		t.Error("Expected error for zero round budget")
	}
	if _, err := NewSession(post, testAgents(commentPort(), "u1", "u1"), matchAllStrategy(), 5); err == nil {
		t.Error("Expected error for duplicate user ids")
	}
	bad := []*agent.Agent{agent.New(domain.UserProfile{UserID: "u1", ActivityLevel: 2}, 5, commentPort())}
	if _, err := NewSession(post, bad, matchAllStrategy(), 5); err == nil {
		t.Error("Expected error for out-of-range activity level")
	}
}
