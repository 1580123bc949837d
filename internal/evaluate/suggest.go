package evaluate

import (
	"fmt"
	"sort"

	"github.com/echolabs/echosim/internal/domain"
)

// Thresholds are the floors below which a metric triggers a strategy
// suggestion. A zero floor disables the check for that metric.
type Thresholds struct {
	EngagementRate   float64 `json:"engagement_rate"`
	ConversionRate   float64 `json:"conversion_rate"`
	OpinionDiversity float64 `json:"opinion_diversity"`
	ViralityScore    float64 `json:"virality_score"`
}

// DefaultThresholds returns the floors used when a session does not
// override them.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EngagementRate:   0.2,
		ConversionRate:   0.1,
		OpinionDiversity: 0.1,
		ViralityScore:    0.05,
	}
}

// Suggest compares metrics against the thresholds and returns advisory
// adjustments ranked by severity, worst shortfall first. The caller
// decides whether to act on them; nothing is applied automatically.
func Suggest(m domain.EvaluationMetrics, th Thresholds) []domain.Suggestion {
	var out []domain.Suggestion

	check := func(metric string, observed, floor float64, msg string) {
		if floor <= 0 || observed >= floor {
			return
		}
		out = append(out, domain.Suggestion{
			Metric:   metric,
			Observed: observed,
			Floor:    floor,
			Severity: (floor - observed) / floor,
			Message:  msg,
		})
	}

	check("engagement_rate", m.EngagementRate, th.EngagementRate,
		"engagement below floor; increase weight of activity_level rules or raise top_k")
	check("conversion_rate", m.ConversionRate, th.ConversionRate,
		"few meaningful actions; target users with discuss or share intent")
	check("opinion_diversity", m.OpinionDiversity, th.OpinionDiversity,
		"opinion pool is uniform; widen targeting beyond the dominant stance")
	check("virality_score", m.ViralityScore, th.ViralityScore,
		fmt.Sprintf("reach is not growing (round %d); target users with higher social_influence", m.Round))

	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}
