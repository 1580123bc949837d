// Package domain contains core domain types for the echosim engine.
package domain

// Gender of a simulated user.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Stance describes a user's position towards the content topic.
type Stance string

const (
	StanceSupport Stance = "support"
	StanceOppose  Stance = "oppose"
	StanceNeutral Stance = "neutral"
)

// Emotion describes a user's emotional disposition.
type Emotion string

const (
	EmotionPositive Emotion = "positive"
	EmotionNegative Emotion = "negative"
	EmotionNeutral  Emotion = "neutral"
)

// Intent describes how a user tends to engage with content.
type Intent string

const (
	IntentShare     Intent = "share"
	IntentDiscuss   Intent = "discuss"
	IntentCriticize Intent = "criticize"
	IntentSupport   Intent = "support"
	IntentIgnore    Intent = "ignore"
)

// UserProfile describes a simulated social-media user. Profiles are
// immutable after session creation; the engine only reads them.
type UserProfile struct {
	UserID          string   `json:"user_id" yaml:"user_id"`
	Age             int      `json:"age" yaml:"age"`
	Gender          Gender   `json:"gender" yaml:"gender"`
	Occupation      string   `json:"occupation" yaml:"occupation"`
	EducationLevel  string   `json:"education_level,omitempty" yaml:"education_level"`
	Location        string   `json:"location,omitempty" yaml:"location"`
	Stance          Stance   `json:"stance" yaml:"stance"`
	Emotion         Emotion  `json:"emotion" yaml:"emotion"`
	Intent          Intent   `json:"intent" yaml:"intent"`
	Interests       []string `json:"interests,omitempty" yaml:"interests"`
	SocialInfluence float64  `json:"social_influence" yaml:"social_influence"`
	ActivityLevel   float64  `json:"activity_level" yaml:"activity_level"`
}

// Numeric returns the named numeric attribute. The second return value
// is false when the profile has no such attribute; rule evaluation
// treats that as a non-match rather than an error.
func (p UserProfile) Numeric(attr string) (float64, bool) {
	switch attr {
	case "age":
		return float64(p.Age), true
	case "activity_level":
		return p.ActivityLevel, true
	case "social_influence":
		return p.SocialInfluence, true
	default:
		return 0, false
	}
}

// Text returns the named textual attribute. Empty values count as
// missing so half-filled profiles never match enum conditions.
func (p UserProfile) Text(attr string) (string, bool) {
	var v string
	switch attr {
	case "gender":
		v = string(p.Gender)
	case "occupation":
		v = p.Occupation
	case "education_level":
		v = p.EducationLevel
	case "location":
		v = p.Location
	case "stance":
		v = string(p.Stance)
	case "emotion":
		v = string(p.Emotion)
	case "intent":
		v = string(p.Intent)
	default:
		return "", false
	}
	if v == "" {
		return "", false
	}
	return v, true
}

// Validate checks that enum fields and continuous parameters are in
// range. Called once at session creation.
func (p UserProfile) Validate() error {
	if p.UserID == "" {
		return errProfile("user_id is empty")
	}
	switch p.Stance {
	case StanceSupport, StanceOppose, StanceNeutral, "":
	default:
		return errProfile("unknown stance " + string(p.Stance))
	}
	switch p.Emotion {
	case EmotionPositive, EmotionNegative, EmotionNeutral, "":
	default:
		return errProfile("unknown emotion " + string(p.Emotion))
	}
	switch p.Intent {
	case IntentShare, IntentDiscuss, IntentCriticize, IntentSupport, IntentIgnore, "":
	default:
		return errProfile("unknown intent " + string(p.Intent))
	}
	if p.ActivityLevel < 0 || p.ActivityLevel > 1 {
		return errProfile("activity_level out of [0,1]")
	}
	if p.SocialInfluence < 0 || p.SocialInfluence > 1 {
		return errProfile("social_influence out of [0,1]")
	}
	return nil
}

type errProfile string

func (e errProfile) Error() string { return "invalid profile: " + string(e) }
