// Package store persists resolution outcomes: confirmed links and the
// review queue for candidates that need a human decision.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/registry-link/internal/resolve"
)

// Sentinel errors returned by Store implementations.
var (
	ErrNotFound          = eris.New("store: not found")
	ErrReviewClosed      = eris.New("store: review already resolved")
	ErrCandidateNotFound = eris.New("store: candidate not in review")
)

// LinkedBy records how a link was made.
type LinkedBy string

const (
	LinkedByAuto   LinkedBy = "auto"
	LinkedByReview LinkedBy = "review"
)

// ReviewStatus is the lifecycle state of a queued review.
type ReviewStatus string

const (
	ReviewOpen       ReviewStatus = "open"
	ReviewLinked     ReviewStatus = "linked"
	ReviewSuperseded ReviewStatus = "superseded"
)

// Default and maximum page sizes for ListReviews.
const (
	DefaultReviewLimit = 50
	MaxReviewLimit     = 500
)

// Subject identifies the CRM record an outcome belongs to.
type Subject struct {
	SourceID  string `json:"source_id"`
	SubjectID string `json:"subject_id"`
	Name      string `json:"name"`
}

// Link is a confirmed association between a CRM record and a registry entity.
type Link struct {
	SourceID    string            `json:"source_id"`
	SubjectID   string            `json:"subject_id"`
	SubjectName string            `json:"subject_name"`
	Candidate   resolve.Candidate `json:"candidate"`
	Score       float64           `json:"score"`
	LinkedBy    LinkedBy          `json:"linked_by"`
	LinkedAt    time.Time         `json:"linked_at"`
}

// Review is a queued Pending or NoMatch outcome. There is at most one
// review per subject; a newer outcome replaces the older one.
type Review struct {
	ID          string              `json:"id"`
	SourceID    string              `json:"source_id"`
	SubjectID   string              `json:"subject_id"`
	SubjectName string              `json:"subject_name"`
	Disposition resolve.Disposition `json:"disposition"`
	Outcome     resolve.OutcomeView `json:"outcome"`
	Status      ReviewStatus        `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	ResolvedAt  *time.Time          `json:"resolved_at,omitempty"`
}

// ReviewFilter narrows ListReviews. Empty fields match everything.
type ReviewFilter struct {
	Status      ReviewStatus        `json:"status,omitempty"`
	Disposition resolve.Disposition `json:"disposition,omitempty"`
	Limit       int                 `json:"limit,omitempty"`
}

func (f ReviewFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultReviewLimit
	case f.Limit > MaxReviewLimit:
		return MaxReviewLimit
	default:
		return f.Limit
	}
}

// Store defines the persistence interface for resolution outcomes.
type Store interface {
	// Links
	SaveLink(ctx context.Context, subject Subject, m resolve.Matched) (*Link, error)
	GetLink(ctx context.Context, sourceID, subjectID string) (*Link, error)

	// Review queue
	EnqueueReview(ctx context.Context, subject Subject, o resolve.Outcome) (*Review, error)
	ListReviews(ctx context.Context, filter ReviewFilter) ([]Review, error)
	ResolveReview(ctx context.Context, reviewID, candidateID string) (*Link, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Record persists an outcome: a Matched becomes a link, anything else
// goes to the review queue.
func Record(ctx context.Context, s Store, subject Subject, o resolve.Outcome) error {
	if m, ok := o.(resolve.Matched); ok {
		_, err := s.SaveLink(ctx, subject, m)
		return err
	}
	_, err := s.EnqueueReview(ctx, subject, o)
	return err
}

// subjectName prefers the name carried by the outcome, falling back to the
// subject's own.
func subjectName(subject Subject, view resolve.OutcomeView) string {
	if view.SubjectName != "" {
		return view.SubjectName
	}
	return subject.Name
}

// pickCandidate finds candidateID in a stored review's outcome.
func pickCandidate(view resolve.OutcomeView, candidateID string) (resolve.Candidate, float64, error) {
	c, score, ok := view.Find(candidateID)
	if !ok {
		return resolve.Candidate{}, 0, ErrCandidateNotFound
	}
	return c, score, nil
}
