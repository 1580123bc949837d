// Package scenario loads simulation scenarios from YAML files: the
// content item, the user population, and the distribution strategy as
// a declarative condition tree.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/echolabs/echosim/internal/domain"
	"github.com/echolabs/echosim/internal/targeting"
)

// Scenario is the parsed, validated form of a scenario file.
type Scenario struct {
	Name      string               `yaml:"name" json:"name,omitempty"`
	Post      PostSpec             `yaml:"post" json:"post,omitempty"`
	Users     []domain.UserProfile `yaml:"users" json:"users,omitempty"`
	Strategy  StrategySpec         `yaml:"strategy" json:"strategy,omitempty"`
	Overrides *Overrides           `yaml:"overrides" json:"overrides,omitempty"`
}

// PostSpec describes the content item a session starts from.
type PostSpec struct {
	Title   string `yaml:"title" json:"title,omitempty"`
	Content string `yaml:"content" json:"content,omitempty"`
	Author  string `yaml:"author" json:"author,omitempty"`
}

// StrategySpec is the declarative distribution strategy.
type StrategySpec struct {
	Name    string     `yaml:"name" json:"name,omitempty"`
	Combine string     `yaml:"combine" json:"combine,omitempty"`
	Rules   []RuleSpec `yaml:"rules" json:"rules,omitempty"`
}

// RuleSpec pairs one condition tree with a weight.
type RuleSpec struct {
	ID     string        `yaml:"id" json:"id,omitempty"`
	Name   string        `yaml:"name" json:"name,omitempty"`
	Weight float64       `yaml:"weight" json:"weight,omitempty"`
	Active *bool         `yaml:"active" json:"active,omitempty"`
	When   ConditionSpec `yaml:"when" json:"when,omitempty"`
}

// ConditionSpec is one node of a condition tree. Exactly one of the
// variant fields must be set: a threshold comparison (attr/op/value),
// a membership test (attr/in), a minimum action count (min_actions),
// or a combinator (all/any).
type ConditionSpec struct {
	Attr       string          `yaml:"attr" json:"attr,omitempty"`
	Op         string          `yaml:"op" json:"op,omitempty"`
	Value      *float64        `yaml:"value" json:"value,omitempty"`
	In         []string        `yaml:"in" json:"in,omitempty"`
	MinActions *int            `yaml:"min_actions" json:"min_actions,omitempty"`
	All        []ConditionSpec `yaml:"all" json:"all,omitempty"`
	Any        []ConditionSpec `yaml:"any" json:"any,omitempty"`
}

// Overrides optionally replace session defaults from the environment.
type Overrides struct {
	MaxRounds             *int     `yaml:"max_rounds" json:"max_rounds,omitempty"`
	DistributionTopK      *int     `yaml:"distribution_top_k" json:"distribution_top_k,omitempty"`
	ScoreFloor            *float64 `yaml:"score_floor" json:"score_floor,omitempty"`
	RedistributeEvery     *int     `yaml:"redistribute_every" json:"redistribute_every,omitempty"`
	StopMetricThreshold   *float64 `yaml:"stop_metric_threshold" json:"stop_metric_threshold,omitempty"`
	StopConsecutiveRounds *int     `yaml:"stop_consecutive_rounds" json:"stop_consecutive_rounds,omitempty"`
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates scenario YAML.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
	}
	return &sc, nil
}

// Validate checks the scenario for structural problems: missing
// users, malformed condition trees, out-of-range profile values.
func (sc *Scenario) Validate() error {
	if sc.Post.Title == "" && sc.Post.Content == "" {
		return fmt.Errorf("post needs a title or content")
	}
	if len(sc.Users) == 0 {
		return fmt.Errorf("at least one user is required")
	}
	for i, u := range sc.Users {
		if err := u.Validate(); err != nil {
			return fmt.Errorf("user %d: %w", i, err)
		}
	}
	if len(sc.Strategy.Rules) == 0 {
		return fmt.Errorf("strategy needs at least one rule")
	}
	if _, err := targeting.ParseCombinePolicy(sc.Strategy.Combine); err != nil {
		return err
	}
	for i, r := range sc.Strategy.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
		if _, err := buildCondition(r.When); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	return nil
}

// BuildStrategy converts the declarative rules into an executable
// strategy. Call after Parse; the condition trees are already known
// to be well formed.
func (sc *Scenario) BuildStrategy() (*targeting.Strategy, error) {
	policy, err := targeting.ParseCombinePolicy(sc.Strategy.Combine)
	if err != nil {
		return nil, err
	}
	rules := make([]targeting.Rule, 0, len(sc.Strategy.Rules))
	for _, r := range sc.Strategy.Rules {
		cond, err := buildCondition(r.When)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		active := true
		if r.Active != nil {
			active = *r.Active
		}
		rules = append(rules, targeting.Rule{
			ID:        r.ID,
			Name:      r.Name,
			Condition: cond,
			Weight:    r.Weight,
			Active:    active,
		})
	}
	name := sc.Strategy.Name
	if name == "" {
		name = sc.Name
	}
	return targeting.NewStrategy(name, policy, rules...), nil
}

func buildCondition(spec ConditionSpec) (targeting.Condition, error) {
	variants := 0
	if spec.Value != nil {
		variants++
	}
	if len(spec.In) > 0 {
		variants++
	}
	if spec.MinActions != nil {
		variants++
	}
	if len(spec.All) > 0 {
		variants++
	}
	if len(spec.Any) > 0 {
		variants++
	}
	if variants != 1 {
		return nil, fmt.Errorf("condition must have exactly one of value/in/min_actions/all/any")
	}

	switch {
	case spec.Value != nil:
		if spec.Attr == "" {
			return nil, fmt.Errorf("threshold condition needs attr")
		}
		op, err := parseComparator(spec.Op)
		if err != nil {
			return nil, err
		}
		return targeting.Threshold{Attr: spec.Attr, Op: op, Value: *spec.Value}, nil
	case len(spec.In) > 0:
		if spec.Attr == "" {
			return nil, fmt.Errorf("membership condition needs attr")
		}
		return targeting.OneOf{Attr: spec.Attr, Values: spec.In}, nil
	case spec.MinActions != nil:
		return targeting.MinActions{N: *spec.MinActions}, nil
	case len(spec.All) > 0:
		children, err := buildConditions(spec.All)
		if err != nil {
			return nil, err
		}
		return targeting.All(children), nil
	default:
		children, err := buildConditions(spec.Any)
		if err != nil {
			return nil, err
		}
		return targeting.Any(children), nil
	}
}

func buildConditions(specs []ConditionSpec) ([]targeting.Condition, error) {
	out := make([]targeting.Condition, 0, len(specs))
	for _, s := range specs {
		c, err := buildCondition(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseComparator(op string) (targeting.Comparator, error) {
	switch targeting.Comparator(op) {
	case targeting.CmpGTE, targeting.CmpGT, targeting.CmpLTE, targeting.CmpLT, targeting.CmpEQ:
		return targeting.Comparator(op), nil
	case "":
		return targeting.CmpGTE, nil
	default:
		return "", fmt.Errorf("unknown comparator %q", op)
	}
}
