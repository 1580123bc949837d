package domain

// EvaluationMetrics is a snapshot value object computed fresh on every
// evaluation call; it is never mutated in place.
//
// Ranges: EngagementRate, OpinionDiversity, ConversionRate and
// ViralityScore are in [0,1]; SentimentShift is in [-2,2] (difference
// of two means in [-1,1]); Reach is a non-negative count.
type EvaluationMetrics struct {
	Round            int     `json:"round"`
	EngagementRate   float64 `json:"engagement_rate"`
	SentimentShift   float64 `json:"sentiment_shift"`
	OpinionDiversity float64 `json:"opinion_diversity"`
	Reach            int     `json:"reach"`
	ConversionRate   float64 `json:"conversion_rate"`
	ViralityScore    float64 `json:"virality_score"`
}

// Suggestion is an advisory strategy adjustment emitted by the
// evaluation engine. Suggestions are never auto-applied.
type Suggestion struct {
	Metric   string  `json:"metric"`
	Observed float64 `json:"observed"`
	Floor    float64 `json:"floor"`
	Severity float64 `json:"severity"`
	Message  string  `json:"message"`
}
