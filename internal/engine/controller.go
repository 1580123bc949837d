package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/echolabs/echosim/internal/agent"
	"github.com/echolabs/echosim/internal/evaluate"
	"github.com/echolabs/echosim/internal/targeting"
)

// EventSink receives progress events while a session runs. Sinks must
// not block; slow consumers drop events on their own side.
type EventSink interface {
	RoundStarted(sessionID string, round int, targets []targeting.Target)
	RoundCompleted(sessionID string, rec RoundRecord)
	SessionEnded(sessionID string, reason StopReason)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RoundStarted(string, int, []targeting.Target) {}
func (NopSink) RoundCompleted(string, RoundRecord)           {}
func (NopSink) SessionEnded(string, StopReason)              {}

// MultiSink forwards every event to each member in order.
type MultiSink []EventSink

func (m MultiSink) RoundStarted(sessionID string, round int, targets []targeting.Target) {
	for _, s := range m {
		s.RoundStarted(sessionID, round, targets)
	}
}

func (m MultiSink) RoundCompleted(sessionID string, rec RoundRecord) {
	for _, s := range m {
		s.RoundCompleted(sessionID, rec)
	}
}

func (m MultiSink) SessionEnded(sessionID string, reason StopReason) {
	for _, s := range m {
		s.SessionEnded(sessionID, reason)
	}
}

// ControllerConfig tunes one controller run.
type ControllerConfig struct {
	// Cutoff limits each distribution wave.
	Cutoff targeting.Cutoff
	// RedistributeEvery re-runs target selection every N rounds; the
	// wave's target set is reused in between. Minimum 1.
	RedistributeEvery int
	// StopMetricThreshold and StopConsecutiveRounds end the session
	// early when engagement stays below the threshold for that many
	// consecutive rounds. A zero threshold disables the check.
	StopMetricThreshold   float64
	StopConsecutiveRounds int
	// Thresholds drive advisory suggestions attached to each round.
	Thresholds evaluate.Thresholds
	// RoundInterval is an optional pause between rounds.
	RoundInterval time.Duration
}

// Controller orchestrates sessions: distribute, simulate, evaluate,
// decide continuation. One controller can run many sessions; each Run
// call owns its session exclusively until it returns.
type Controller struct {
	scheduler *Scheduler
	cfg       ControllerConfig
	sink      EventSink
	log       *slog.Logger
}

// NewController assembles a controller. A nil sink discards events.
func NewController(scheduler *Scheduler, cfg ControllerConfig, sink EventSink, log *slog.Logger) *Controller {
	if sink == nil {
		sink = NopSink{}
	}
	if cfg.RedistributeEvery < 1 {
		cfg.RedistributeEvery = 1
	}
	return &Controller{scheduler: scheduler, cfg: cfg, sink: sink, log: log}
}

// Run drives the session until its round budget is exhausted, a stop
// condition fires, or the context ends, then finalizes it to
// read-only. The terminated session remains exportable.
func (c *Controller) Run(ctx context.Context, sess *Session) error {
	var (
		targets    []targeting.Target
		prevReach  int
		belowFloor int
	)

	for {
		if err := ctx.Err(); err != nil {
			c.finish(sess, StopContextCanceled)
			return err
		}

		round, err := sess.BeginRound()
		if err != nil {
			return err
		}
		if round > sess.maxRounds {
			sess.Terminate(StopRoundBudget)
			c.sink.SessionEnded(sess.ID(), StopRoundBudget)
			return nil
		}

		if targets == nil || (round-1)%c.cfg.RedistributeEvery == 0 {
			targets = targeting.SelectTargets(sess.Population(), sess.Strategy(), sess.Store().Snapshot(), c.cfg.Cutoff)
		}
		if len(targets) == 0 {
			// An empty wave is a valid round with no actions, not an
			// error; stop conditions decide whether it is worth
			// continuing.
			c.log.Info("no users matched the distribution rules", "session_id", sess.ID(), "round", round)
		}
		c.sink.RoundStarted(sess.ID(), round, targets)

		result, err := c.scheduler.RunRound(ctx, sess.Post(), c.pick(sess, targets), round)
		if err != nil {
			c.log.Error("round aborted", "session_id", sess.ID(), "round", round, "error", err)
			c.finish(sess, StopStoreFailure)
			return err
		}

		metrics := evaluate.Evaluate(sess.Store().Snapshot(), evaluate.Window{
			Round:     round,
			Targets:   len(targets),
			PrevReach: prevReach,
		})
		prevReach = metrics.Reach

		rec := RoundRecord{
			Round:       round,
			Targets:     targets,
			Result:      result,
			Metrics:     metrics,
			Suggestions: evaluate.Suggest(metrics, c.cfg.Thresholds),
		}
		if err := sess.CompleteRound(rec); err != nil {
			return err
		}
		c.sink.RoundCompleted(sess.ID(), rec)
		c.log.Info("round complete",
			"session_id", sess.ID(),
			"round", round,
			"engagement", metrics.EngagementRate,
			"reach", metrics.Reach,
			"failed_decisions", result.FailedDecisions,
		)

		if c.cfg.StopMetricThreshold > 0 {
			if metrics.EngagementRate < c.cfg.StopMetricThreshold {
				belowFloor++
			} else {
				belowFloor = 0
			}
			if belowFloor >= c.cfg.StopConsecutiveRounds && c.cfg.StopConsecutiveRounds > 0 {
				c.finish(sess, StopMetricFloor)
				return nil
			}
		}

		if c.cfg.RoundInterval > 0 {
			select {
			case <-ctx.Done():
				c.finish(sess, StopContextCanceled)
				return ctx.Err()
			case <-time.After(c.cfg.RoundInterval):
			}
		}
	}
}

// pick maps a target set back to the session's agents in rank order.
func (c *Controller) pick(sess *Session, targets []targeting.Target) []*agent.Agent {
	byID := make(map[string]*agent.Agent, len(sess.Agents()))
	for _, ag := range sess.Agents() {
		byID[ag.Profile().UserID] = ag
	}
	out := make([]*agent.Agent, 0, len(targets))
	for _, t := range targets {
		if ag, ok := byID[t.UserID]; ok {
			out = append(out, ag)
		}
	}
	return out
}

func (c *Controller) finish(sess *Session, reason StopReason) {
	sess.Terminate(reason)
	c.sink.SessionEnded(sess.ID(), reason)
}
