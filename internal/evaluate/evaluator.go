// Package evaluate computes multi-dimensional effect metrics from
// interaction store snapshots and derives advisory strategy
// suggestions from them.
package evaluate

import (
	"context"
	"math"

	"github.com/echolabs/echosim/internal/domain"
	"github.com/echolabs/echosim/internal/feed"
)

// Analyzer is the content-analysis port. Sentiment is a scalar in
// [-1,1]; the engine only aggregates these values, it never computes
// raw sentiment itself.
type Analyzer interface {
	SentimentOf(ctx context.Context, text string) (float64, error)
	StanceOf(ctx context.Context, text string) (domain.Stance, error)
}

// Window scopes one evaluation call to a round. Targets is the number
// of users the distribution engine selected for that round; PrevReach
// is the reach measured in the previous round (0 for the first).
type Window struct {
	Round     int
	Targets   int
	PrevReach int
}

// Evaluate computes the metrics for one round from a consistent
// snapshot. The result is a fresh value object every call.
//
// The baseline for sentiment shift is every comment and reply created
// before the window's round; the current window is the comments and
// replies created in it. Reach counts distinct users with at least one
// recorded action in the round other than a no-op, including users
// outside the original target set.
func Evaluate(snap *feed.Snapshot, w Window) domain.EvaluationMetrics {
	m := domain.EvaluationMetrics{Round: w.Round}

	actors := snap.ActorsInRound(w.Round)
	m.Reach = len(actors)

	if w.Targets > 0 {
		m.EngagementRate = clamp01(float64(len(actors)) / float64(w.Targets))
	}

	roundActions := snap.ActionsInRound(w.Round)
	if len(roundActions) > 0 {
		meaningful := 0
		for _, a := range roundActions {
			if a.Type.Meaningful() {
				meaningful++
			}
		}
		m.ConversionRate = float64(meaningful) / float64(len(roundActions))
	}

	m.SentimentShift = sentimentShift(snap, w.Round)
	m.OpinionDiversity = opinionDiversity(snap, w.Round)
	m.ViralityScore = virality(roundActions, m.Reach, w.PrevReach)

	return m
}

// sentimentShift is the mean sentiment of the window's comments and
// replies minus the mean of all earlier ones. Either mean is 0 when
// its window is empty, so an all-quiet round shifts by 0.
func sentimentShift(snap *feed.Snapshot, round int) float64 {
	var curSum, baseSum float64
	var curN, baseN int
	walkSentiments(snap, round+1, func(s float64, r int) {
		if r == round {
			curSum += s
			curN++
		} else {
			baseSum += s
			baseN++
		}
	})
	var cur, base float64
	if curN > 0 {
		cur = curSum / float64(curN)
	}
	if baseN > 0 {
		base = baseSum / float64(baseN)
	}
	return cur - base
}

// opinionDiversity is the normalized entropy of sentiment polarity
// over all comments and replies up to and including the round. With
// fewer than two of them there is no dispersion to measure and the
// result is 0.
func opinionDiversity(snap *feed.Snapshot, round int) float64 {
	var buckets [3]int
	total := 0
	walkSentiments(snap, round+1, func(s float64, _ int) {
		buckets[polarity(s)]++
		total++
	})
	if total < 2 {
		return 0
	}
	var h float64
	for _, n := range buckets {
		if n == 0 {
			continue
		}
		p := float64(n) / float64(total)
		h -= p * math.Log(p)
	}
	return clamp01(h / math.Log(float64(len(buckets))))
}

// virality blends reach growth with the share of spreading actions.
// When the previous round reached nobody there is no growth to
// measure and the score is 0.
func virality(roundActions []domain.Action, reach, prevReach int) float64 {
	if prevReach == 0 {
		return 0
	}
	growth := float64(reach) / float64(prevReach)

	var spreads float64
	if len(roundActions) > 0 {
		n := 0
		for _, a := range roundActions {
			if a.Type == domain.ActionShare || a.Type == domain.ActionForward {
				n++
			}
		}
		spreads = float64(n) / float64(len(roundActions))
	}
	return clamp01(0.5*growth/(1+growth) + 0.5*spreads)
}

// walkSentiments visits the sentiment of every comment and reply
// created before the given round bound, oldest rounds included.
func walkSentiments(snap *feed.Snapshot, bound int, visit func(sentiment float64, round int)) {
	for _, c := range snap.Comments {
		if c.Round < bound {
			visit(c.Sentiment, c.Round)
		}
	}
	for _, r := range snap.Replies {
		if r.Round < bound {
			visit(r.Sentiment, r.Round)
		}
	}
}

func polarity(s float64) int {
	switch {
	case s > 0.2:
		return 0
	case s < -0.2:
		return 1
	default:
		return 2
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
