package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/echolabs/echosim/internal/targeting"
)

const sampleYAML = `
name: product-launch
post:
  title: "New headphones"
  content: "We just launched our new noise-cancelling headphones."
  author: brand
users:
  - user_id: u1
    age: 29
    gender: female
    occupation: engineer
    stance: neutral
    emotion: positive
    intent: discuss
    activity_level: 0.9
    social_influence: 0.7
  - user_id: u2
    age: 44
    gender: male
    occupation: journalist
    stance: oppose
    emotion: negative
    intent: criticize
    activity_level: 0.3
    social_influence: 0.2
strategy:
  name: active-first
  combine: sum
  rules:
    - id: active
      name: prefer active users
      weight: 1.0
      active: true
      when:
        attr: activity_level
        op: gte
        value: 0.5
    - id: engaged-or-positive
      weight: 0.5
      active: true
      when:
        any:
          - min_actions: 1
          - attr: emotion
            in: [positive]
overrides:
  max_rounds: 5
  distribution_top_k: 10
`

func TestParse(t *testing.T) {
	sc, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sc.Name != "product-launch" {
		t.Errorf("Expected scenario name, got %q", sc.Name)
	}
	if len(sc.Users) != 2 || sc.Users[0].UserID != "u1" {
		t.Errorf("Expected 2 users starting with u1, got %v", sc.Users)
	}
	if sc.Users[0].ActivityLevel != 0.9 {
		t.Errorf("Expected activity 0.9, got %v", sc.Users[0].ActivityLevel)
	}
	if sc.Overrides == nil || *sc.Overrides.MaxRounds != 5 {
		t.Errorf("Expected max_rounds override 5, got %+v", sc.Overrides)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}

	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sc.Name != "product-launch" {
		t.Errorf("Expected scenario name, got %q", sc.Name)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoad_ShippedScenarios(t *testing.T) {
	paths, err := filepath.Glob("../../scenarios/*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("Expected at least one shipped scenario file")
	}
	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			sc, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if _, err := sc.BuildStrategy(); err != nil {
				t.Errorf("BuildStrategy: %v", err)
			}
		})
	}
}

func TestBuildStrategy(t *testing.T) {
	sc, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s, err := sc.BuildStrategy()
	if err != nil {
		t.Fatalf("BuildStrategy: %v", err)
	}
	if s.Name() != "active-first" || s.Policy() != targeting.CombineSum {
		t.Errorf("Unexpected strategy %q policy %q", s.Name(), s.Policy())
	}

	rules := s.ActiveRules()
	if len(rules) != 2 {
		t.Fatalf("Expected 2 active rules, got %d", len(rules))
	}

	// The built conditions behave like the YAML says.
	targets := targeting.SelectTargets(sc.Users, s, nil, targeting.Cutoff{})
	got := targeting.UserIDs(targets)
	// u1 matches both rules (1.5); u2 matches neither.
	if len(got) != 1 || got[0] != "u1" {
		t.Errorf("Expected [u1], got %v", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name, yaml, wantErr string
	}{
		{
			name:    "no users",
			yaml:    "post: {title: t}\nstrategy: {rules: [{id: r, weight: 1, when: {min_actions: 1}}]}",
			wantErr: "at least one user",
		},
		{
			name:    "no rules",
			yaml:    "post: {title: t}\nusers: [{user_id: u1}]\nstrategy: {rules: []}",
			wantErr: "at least one rule",
		},
		{
			name:    "missing rule id",
			yaml:    "post: {title: t}\nusers: [{user_id: u1}]\nstrategy: {rules: [{weight: 1, when: {min_actions: 1}}]}",
			wantErr: "id is required",
		},
		{
			name:    "ambiguous condition",
			yaml:    "post: {title: t}\nusers: [{user_id: u1}]\nstrategy: {rules: [{id: r, weight: 1, when: {attr: age, value: 1, min_actions: 1}}]}",
			wantErr: "exactly one of",
		},
		{
			name:    "bad comparator",
			yaml:    "post: {title: t}\nusers: [{user_id: u1}]\nstrategy: {rules: [{id: r, weight: 1, when: {attr: age, op: near, value: 30}}]}",
			wantErr: "unknown comparator",
		},
		{
			name:    "bad profile",
			yaml:    "post: {title: t}\nusers: [{user_id: u1, activity_level: 3}]\nstrategy: {rules: [{id: r, weight: 1, when: {min_actions: 1}}]}",
			wantErr: "activity_level",
		},
		{
			name:    "bad combine policy",
			yaml:    "post: {title: t}\nusers: [{user_id: u1}]\nstrategy: {combine: max, rules: [{id: r, weight: 1, when: {min_actions: 1}}]}",
			wantErr: "combine policy",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("Expected parse to fail")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
