package resolve

import (
	"sort"

	"go.uber.org/zap"
)

// Thresholds are the tunable parameters of classification.
type Thresholds struct {
	// AutoLink is the minimum score linked without review.
	AutoLink float64 `mapstructure:"auto_link_threshold"`
	// Floor is the minimum score shown to a reviewer at all.
	Floor float64 `mapstructure:"relevance_floor"`
	// LocationBonus is added when the state hint matches the candidate.
	LocationBonus float64 `mapstructure:"location_bonus"`
	// MaxCandidates caps Pending.Top and NoMatch.Sample.
	MaxCandidates int `mapstructure:"max_candidates"`
}

// DefaultThresholds returns the production defaults. A short brand name
// against a long legal name ("Honeywell" vs "Honeywell International Inc")
// must still clear AutoLink.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoLink:      0.55,
		Floor:         0.5,
		LocationBonus: 0.1,
		MaxCandidates: 5,
	}
}

// Classifier scores candidates and decides the disposition.
type Classifier struct {
	th     Thresholds
	scorer Scorer
}

// NewClassifier creates a classifier. A non-positive MaxCandidates falls
// back to the default.
func NewClassifier(th Thresholds) *Classifier {
	if th.MaxCandidates <= 0 {
		th.MaxCandidates = DefaultThresholds().MaxCandidates
	}
	return &Classifier{th: th, scorer: Scorer{LocationBonus: th.LocationBonus}}
}

// Thresholds returns the classifier's configuration.
func (c *Classifier) Thresholds() Thresholds { return c.th }

// Classify scores candidates against q and returns the outcome.
func (c *Classifier) Classify(q Query, candidates []Candidate) Outcome {
	if len(candidates) == 0 {
		return NoMatch{SubjectName: q.SubjectName, Sample: []Candidate{}}
	}

	relevant := make([]ScoredCandidate, 0, len(candidates))
	for _, cand := range candidates {
		score := c.scorer.Score(q.SubjectName, q.StateHint, cand)
		if score >= c.th.Floor {
			relevant = append(relevant, ScoredCandidate{Candidate: cand, Score: score})
		}
	}

	if len(relevant) == 0 {
		return NoMatch{SubjectName: q.SubjectName, Sample: head(candidates, c.th.MaxCandidates)}
	}

	// Stable so equal scores keep retrieval order.
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].Score > relevant[j].Score
	})

	best := relevant[0]
	if best.Score >= c.th.AutoLink {
		return Matched{SubjectName: q.SubjectName, Candidate: best.Candidate, Score: best.Score}
	}

	zap.L().Debug("resolve: best candidate below auto-link threshold",
		zap.String("subject", q.SubjectName),
		zap.String("candidate", best.Candidate.LegalName),
		zap.Float64("score", best.Score),
	)
	return Pending{SubjectName: q.SubjectName, Top: head(relevant, c.th.MaxCandidates)}
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		s = s[:n]
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
