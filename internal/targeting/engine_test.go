package targeting

import (
	"reflect"
	"testing"

	"github.com/echolabs/echosim/internal/domain"
	"github.com/echolabs/echosim/internal/feed"
)

func population() []domain.UserProfile {
	return []domain.UserProfile{
		{UserID: "u1", ActivityLevel: 0.9, SocialInfluence: 0.3, Emotion: domain.EmotionPositive},
		{UserID: "u2", ActivityLevel: 0.5, SocialInfluence: 0.8, Emotion: domain.EmotionNeutral},
		{UserID: "u3", ActivityLevel: 0.1, SocialInfluence: 0.5, Emotion: domain.EmotionNegative},
	}
}

func activityRule(weight float64) Rule {
	return Rule{
		ID:        "activity",
		Name:      "active users first",
		Condition: Threshold{Attr: "activity_level", Op: CmpGTE, Value: 0.5},
		Weight:    weight,
		Active:    true,
	}
}

func TestSelectTargets_TopK(t *testing.T) {
	s := NewStrategy("default", CombineSum, activityRule(1.0))

	targets := SelectTargets(population(), s, nil, Cutoff{TopK: 2})
	if got := UserIDs(targets); !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Errorf("Expected [u1 u2], got %v", got)
	}
}

func TestSelectTargets_ExcludesNonPositive(t *testing.T) {
	s := NewStrategy("default", CombineSum,
		activityRule(1.0),
		Rule{
			ID:        "suppress-negative",
			Condition: OneOf{Attr: "emotion", Values: []string{"neutral"}},
			Weight:    -2.0,
			Active:    true,
		},
	)

	// u2 matches both rules: 1.0 - 2.0 <= 0, excluded.
	targets := SelectTargets(population(), s, nil, Cutoff{})
	if got := UserIDs(targets); !reflect.DeepEqual(got, []string{"u1"}) {
		t.Errorf("Expected suppression to leave [u1], got %v", got)
	}
}

func TestSelectTargets_FirstMatch(t *testing.T) {
	s := NewStrategy("default", CombineFirstMatch,
		activityRule(0.4),
		Rule{
			ID:        "influence",
			Condition: Threshold{Attr: "social_influence", Op: CmpGTE, Value: 0.5},
			Weight:    3.0,
			Active:    true,
		},
	)

	targets := SelectTargets(population(), s, nil, Cutoff{})
	// u3 only matches the influence rule (3.0); u1 and u2 stop at the
	// first rule (0.4). Ranking: u3, then u1/u2 tied broken by id.
	if got := UserIDs(targets); !reflect.DeepEqual(got, []string{"u3", "u1", "u2"}) {
		t.Errorf("Expected [u3 u1 u2], got %v", got)
	}
}

func TestSelectTargets_ScoreFloor(t *testing.T) {
	s := NewStrategy("default", CombineSum,
		activityRule(1.0),
		Rule{
			ID:        "influence",
			Condition: Threshold{Attr: "social_influence", Op: CmpGTE, Value: 0.5},
			Weight:    1.0,
			Active:    true,
		},
	)

	targets := SelectTargets(population(), s, nil, Cutoff{ScoreFloor: 1.5})
	// Only u2 matches both rules (score 2.0).
	if got := UserIDs(targets); !reflect.DeepEqual(got, []string{"u2"}) {
		t.Errorf("Expected [u2], got %v", got)
	}
}

func TestSelectTargets_TieBrokenByUserID(t *testing.T) {
	pop := []domain.UserProfile{
		{UserID: "zeta", ActivityLevel: 0.9},
		{UserID: "alpha", ActivityLevel: 0.9},
	}
	s := NewStrategy("default", CombineSum, activityRule(1.0))

	targets := SelectTargets(pop, s, nil, Cutoff{})
	if got := UserIDs(targets); !reflect.DeepEqual(got, []string{"alpha", "zeta"}) {
		t.Errorf("Expected lexicographic tie break, got %v", got)
	}
}

func TestSelectTargets_RuleEditsApplyNextCall(t *testing.T) {
	s := NewStrategy("default", CombineSum, activityRule(1.0))

	before := SelectTargets(population(), s, nil, Cutoff{})
	if len(before) != 2 {
		t.Fatalf("Expected 2 targets before edit, got %d", len(before))
	}

	s.RemoveRule("activity")
	after := SelectTargets(population(), s, nil, Cutoff{})
	if len(after) != 0 {
		t.Errorf("Expected no targets after rule removal, got %v", after)
	}
}

func TestSelectTargets_HistoryCondition(t *testing.T) {
	store := feed.New()
	post := store.CreatePost("t", "c", "a", 0)
	_ = store.RecordAction(domain.Action{UserID: "u1", Type: domain.ActionLike, TargetID: post.ID, Round: 1})

	s := NewStrategy("default", CombineSum, Rule{
		ID:        "engaged",
		Condition: MinActions{N: 1},
		Weight:    1.0,
		Active:    true,
	})

	targets := SelectTargets(population(), s, store.Snapshot(), Cutoff{})
	if got := UserIDs(targets); !reflect.DeepEqual(got, []string{"u1"}) {
		t.Errorf("Expected [u1], got %v", got)
	}

	// No snapshot means history rules cannot match.
	if got := SelectTargets(population(), s, nil, Cutoff{}); len(got) != 0 {
		t.Errorf("Expected no matches without snapshot, got %v", got)
	}
}
