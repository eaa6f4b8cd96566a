package resolve

import "encoding/json"

// Disposition names the kind of outcome.
type Disposition string

// Dispositions.
const (
	DispositionMatched Disposition = "matched"
	DispositionPending Disposition = "pending"
	DispositionNoMatch Disposition = "no_match"
)

// Outcome is the result of classifying a resolution. It is one of Matched,
// Pending or NoMatch; callers type-switch on it.
type Outcome interface {
	Disposition() Disposition
	outcome()
}

// Matched means the best candidate cleared the auto-link threshold.
type Matched struct {
	SubjectName string
	Candidate   Candidate
	Score       float64
}

// Pending means at least one candidate is relevant but none is strong
// enough to link without review.
type Pending struct {
	SubjectName string
	Top         []ScoredCandidate
}

// NoMatch means nothing relevant was found. Sample keeps a few raw
// candidates for auditing.
type NoMatch struct {
	SubjectName string
	Sample      []Candidate
}

func (Matched) Disposition() Disposition { return DispositionMatched }
func (Pending) Disposition() Disposition { return DispositionPending }
func (NoMatch) Disposition() Disposition { return DispositionNoMatch }

func (Matched) outcome() {}
func (Pending) outcome() {}
func (NoMatch) outcome() {}

// OutcomeView is the wire shape of any Outcome.
type OutcomeView struct {
	Disposition Disposition       `json:"disposition"`
	SubjectName string            `json:"subject_name,omitempty"`
	Match       *ScoredCandidate  `json:"match,omitempty"`
	Candidates  []ScoredCandidate `json:"candidates,omitempty"`
	Sample      []Candidate       `json:"sample,omitempty"`
}

// View flattens an outcome for JSON encoding and storage.
func View(o Outcome) OutcomeView {
	switch v := o.(type) {
	case Matched:
		return OutcomeView{
			Disposition: DispositionMatched,
			SubjectName: v.SubjectName,
			Match:       &ScoredCandidate{Candidate: v.Candidate, Score: v.Score},
		}
	case Pending:
		return OutcomeView{Disposition: DispositionPending, SubjectName: v.SubjectName, Candidates: v.Top}
	case NoMatch:
		return OutcomeView{Disposition: DispositionNoMatch, SubjectName: v.SubjectName, Sample: v.Sample}
	default:
		return OutcomeView{}
	}
}

// Find returns the candidate with the given registry id from the view, with
// its score when one was computed.
func (v OutcomeView) Find(id string) (Candidate, float64, bool) {
	if v.Match != nil && v.Match.Candidate.ID == id {
		return v.Match.Candidate, v.Match.Score, true
	}
	for _, sc := range v.Candidates {
		if sc.Candidate.ID == id {
			return sc.Candidate, sc.Score, true
		}
	}
	for _, c := range v.Sample {
		if c.ID == id {
			return c, 0, true
		}
	}
	return Candidate{}, 0, false
}

func (m Matched) MarshalJSON() ([]byte, error) { return json.Marshal(View(m)) }
func (p Pending) MarshalJSON() ([]byte, error) { return json.Marshal(View(p)) }
func (n NoMatch) MarshalJSON() ([]byte, error) { return json.Marshal(View(n)) }
