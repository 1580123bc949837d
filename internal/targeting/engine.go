package targeting

import (
	"sort"

	"github.com/echolabs/echosim/internal/domain"
	"github.com/echolabs/echosim/internal/feed"
)

// Target is one selected user with its combined rule score.
type Target struct {
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
}

// Cutoff limits the target set after ranking. TopK <= 0 means no size
// limit; ScoreFloor applies in addition to the implicit exclusion of
// non-positive scores.
type Cutoff struct {
	TopK       int
	ScoreFloor float64
}

// SelectTargets scores every user in the population against the
// strategy's active rules and returns the ranked target set, score
// descending, ties broken by user id ascending for determinism.
func SelectTargets(population []domain.UserProfile, strategy *Strategy, snap *feed.Snapshot, cut Cutoff) []Target {
	rules := strategy.ActiveRules()
	policy := strategy.Policy()

	targets := make([]Target, 0, len(population))
	for _, p := range population {
		score, matched := scoreUser(p, rules, policy, snap)
		if !matched || score <= 0 || score < cut.ScoreFloor {
			continue
		}
		targets = append(targets, Target{UserID: p.UserID, Score: score})
	}

	sort.Slice(targets, func(i, j int) bool {
		if targets[i].Score != targets[j].Score {
			return targets[i].Score > targets[j].Score
		}
		return targets[i].UserID < targets[j].UserID
	})

	if cut.TopK > 0 && len(targets) > cut.TopK {
		targets = targets[:cut.TopK]
	}
	return targets
}

func scoreUser(p domain.UserProfile, rules []Rule, policy CombinePolicy, snap *feed.Snapshot) (float64, bool) {
	var score float64
	matched := false
	for _, r := range rules {
		if !r.Condition.Match(p, snap) {
			continue
		}
		if policy == CombineFirstMatch {
			return r.Weight, true
		}
		score += r.Weight
		matched = true
	}
	return score, matched
}

// UserIDs extracts the ids of a target set in rank order.
func UserIDs(targets []Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.UserID
	}
	return out
}
