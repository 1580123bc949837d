package targeting

import (
	"fmt"
	"sync"
)

// CombinePolicy decides how weights of matched rules combine.
type CombinePolicy string

const (
	// CombineSum adds the weights of every matched rule.
	CombineSum CombinePolicy = "sum"
	// CombineFirstMatch takes the weight of the first matching rule in
	// rule order.
	CombineFirstMatch CombinePolicy = "first_match"
)

// ParseCombinePolicy converts a string into a CombinePolicy.
func ParseCombinePolicy(s string) (CombinePolicy, error) {
	switch CombinePolicy(s) {
	case CombineSum, CombineFirstMatch:
		return CombinePolicy(s), nil
	case "":
		return CombineSum, nil
	default:
		return "", fmt.Errorf("unknown combine policy %q", s)
	}
}

// Rule pairs a condition with a weight. Negative weights suppress
// selection of users the condition matches.
type Rule struct {
	ID        string
	Name      string
	Condition Condition
	Weight    float64
	Active    bool
}

// Strategy is a named, ordered rule set owned by the distribution
// engine for the life of a session. Rules can be added or removed
// between waves; edits take effect at the next SelectTargets call and
// never reinterpret past rounds.
type Strategy struct {
	mu     sync.RWMutex
	name   string
	policy CombinePolicy
	rules  []Rule
}

// NewStrategy creates a strategy with the given combination policy.
func NewStrategy(name string, policy CombinePolicy, rules ...Rule) *Strategy {
	if policy == "" {
		policy = CombineSum
	}
	return &Strategy{name: name, policy: policy, rules: rules}
}

// Name returns the strategy name.
func (s *Strategy) Name() string {
	return s.name
}

// Policy returns the combination policy.
func (s *Strategy) Policy() CombinePolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// AddRule appends a rule in order.
func (s *Strategy) AddRule(r Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, r)
}

// RemoveRule deletes the rule with the given id, if present.
func (s *Strategy) RemoveRule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rules[:0]
	for _, r := range s.rules {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	s.rules = kept
}

// ActiveRules returns a copy of the active rules in order.
func (s *Strategy) ActiveRules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}
