// Package targeting implements the distribution engine: a data-driven
// rule set matched against user profiles (and optionally interaction
// history) to select and rank the users that receive content next.
package targeting

import (
	"github.com/echolabs/echosim/internal/domain"
	"github.com/echolabs/echosim/internal/feed"
)

// Comparator for numeric attribute conditions.
type Comparator string

const (
	CmpGTE Comparator = "gte"
	CmpGT  Comparator = "gt"
	CmpLTE Comparator = "lte"
	CmpLT  Comparator = "lt"
	CmpEQ  Comparator = "eq"
)

// Condition is one node of a rule's expression tree. Conditions are
// data interpreted by the engine, not executable configuration.
// A missing profile attribute is a non-match, never an error.
type Condition interface {
	Match(p domain.UserProfile, snap *feed.Snapshot) bool
}

// Threshold compares a numeric profile attribute against a constant,
// e.g. activity_level >= 0.5.
type Threshold struct {
	Attr  string
	Op    Comparator
	Value float64
}

// Match implements Condition.
func (c Threshold) Match(p domain.UserProfile, _ *feed.Snapshot) bool {
	v, ok := p.Numeric(c.Attr)
	if !ok {
		return false
	}
	switch c.Op {
	case CmpGTE:
		return v >= c.Value
	case CmpGT:
		return v > c.Value
	case CmpLTE:
		return v <= c.Value
	case CmpLT:
		return v < c.Value
	case CmpEQ:
		return v == c.Value
	default:
		return false
	}
}

// OneOf matches when a textual profile attribute equals any of the
// listed values, e.g. emotion in {neutral, positive}.
type OneOf struct {
	Attr   string
	Values []string
}

// Match implements Condition.
func (c OneOf) Match(p domain.UserProfile, _ *feed.Snapshot) bool {
	v, ok := p.Text(c.Attr)
	if !ok {
		return false
	}
	for _, want := range c.Values {
		if v == want {
			return true
		}
	}
	return false
}

// MinActions matches users with at least N recorded non-noop actions
// in the store snapshot. Rules using it require a snapshot; without
// one it never matches.
type MinActions struct {
	N int
}

// Match implements Condition.
func (c MinActions) Match(p domain.UserProfile, snap *feed.Snapshot) bool {
	if snap == nil {
		return false
	}
	count := 0
	for _, a := range snap.Actions {
		if a.UserID == p.UserID && a.Type != domain.ActionNoOp {
			count++
			if count >= c.N {
				return true
			}
		}
	}
	return c.N <= 0
}

// All matches when every child matches. An empty All matches nothing.
type All []Condition

// Match implements Condition.
func (c All) Match(p domain.UserProfile, snap *feed.Snapshot) bool {
	if len(c) == 0 {
		return false
	}
	for _, child := range c {
		if !child.Match(p, snap) {
			return false
		}
	}
	return true
}

// Any matches when at least one child matches.
type Any []Condition

// Match implements Condition.
func (c Any) Match(p domain.UserProfile, snap *feed.Snapshot) bool {
	for _, child := range c {
		if child.Match(p, snap) {
			return true
		}
	}
	return false
}
