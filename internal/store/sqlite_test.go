package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/registry-link/internal/resolve"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

var (
	acme = Subject{SourceID: "sf", SubjectID: "001A", Name: "Acme Corp"}

	acmeCandidate = resolve.Candidate{
		ID: "UEI111", LegalName: "ACME CORPORATION", StatusCode: "A", StateCode: "TX",
	}
	acmeSecond = resolve.Candidate{ID: "UEI222", LegalName: "ACME CORP HOLDINGS", StatusCode: "A"}
)

func pendingAcme() resolve.Pending {
	return resolve.Pending{
		SubjectName: "Acme Corp",
		Top: []resolve.ScoredCandidate{
			{Candidate: acmeCandidate, Score: 0.54},
			{Candidate: acmeSecond, Score: 0.51},
		},
	}
}

func TestSQLiteStore_Migrate_Idempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSQLiteStore_SaveLink_GetLink(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	saved, err := s.SaveLink(ctx, acme, resolve.Matched{Candidate: acmeCandidate, Score: 0.91})
	require.NoError(t, err)
	assert.Equal(t, LinkedByAuto, saved.LinkedBy)

	got, err := s.GetLink(ctx, "sf", "001A")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", got.SubjectName)
	assert.Equal(t, acmeCandidate, got.Candidate)
	assert.InDelta(t, 0.91, got.Score, 1e-9)
	assert.Equal(t, LinkedByAuto, got.LinkedBy)
	assert.WithinDuration(t, saved.LinkedAt, got.LinkedAt, time.Second)
}

func TestSQLiteStore_SaveLink_Overwrites(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.SaveLink(ctx, acme, resolve.Matched{Candidate: acmeCandidate, Score: 0.91})
	require.NoError(t, err)
	_, err = s.SaveLink(ctx, acme, resolve.Matched{Candidate: acmeSecond, Score: 0.77})
	require.NoError(t, err)

	got, err := s.GetLink(ctx, "sf", "001A")
	require.NoError(t, err)
	assert.Equal(t, "UEI222", got.Candidate.ID)
}

func TestSQLiteStore_GetLink_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.GetLink(context.Background(), "sf", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_EnqueueReview_UpsertsPerSubject(t *testing.T) {
	s := newTestSQLiteStore(t)
	s.now = steppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first, err := s.EnqueueReview(ctx, acme, pendingAcme())
	require.NoError(t, err)
	assert.Equal(t, ReviewOpen, first.Status)

	second, err := s.EnqueueReview(ctx, acme, resolve.NoMatch{SubjectName: "Acme Corp", Sample: []resolve.Candidate{acmeSecond}})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "review id is stable per subject")

	reviews, err := s.ListReviews(ctx, ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, resolve.DispositionNoMatch, reviews[0].Disposition)
	assert.Equal(t, []resolve.Candidate{acmeSecond}, reviews[0].Outcome.Sample)
	assert.Nil(t, reviews[0].ResolvedAt)
}

func TestSQLiteStore_ListReviews_Filters(t *testing.T) {
	s := newTestSQLiteStore(t)
	s.now = steppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := s.EnqueueReview(ctx, Subject{SourceID: "sf", SubjectID: "1", Name: "One"}, pendingAcme())
	require.NoError(t, err)
	_, err = s.EnqueueReview(ctx, Subject{SourceID: "sf", SubjectID: "2", Name: "Two"},
		resolve.NoMatch{SubjectName: "Two", Sample: []resolve.Candidate{}})
	require.NoError(t, err)
	_, err = s.EnqueueReview(ctx, Subject{SourceID: "sf", SubjectID: "3", Name: "Three"}, pendingAcme())
	require.NoError(t, err)

	all, err := s.ListReviews(ctx, ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].SubjectID, "newest first")

	pending, err := s.ListReviews(ctx, ReviewFilter{Disposition: resolve.DispositionPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	limited, err := s.ListReviews(ctx, ReviewFilter{Status: ReviewOpen, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	linked, err := s.ListReviews(ctx, ReviewFilter{Status: ReviewLinked})
	require.NoError(t, err)
	assert.Empty(t, linked)
}

func TestSQLiteStore_ResolveReview(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	review, err := s.EnqueueReview(ctx, acme, pendingAcme())
	require.NoError(t, err)

	link, err := s.ResolveReview(ctx, review.ID, "UEI222")
	require.NoError(t, err)
	assert.Equal(t, LinkedByReview, link.LinkedBy)
	assert.Equal(t, acmeSecond, link.Candidate)
	assert.InDelta(t, 0.51, link.Score, 1e-9)

	got, err := s.GetLink(ctx, "sf", "001A")
	require.NoError(t, err)
	assert.Equal(t, "UEI222", got.Candidate.ID)

	reviews, err := s.ListReviews(ctx, ReviewFilter{Status: ReviewLinked})
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.NotNil(t, reviews[0].ResolvedAt)

	_, err = s.ResolveReview(ctx, review.ID, "UEI111")
	assert.ErrorIs(t, err, ErrReviewClosed)
}

func TestSQLiteStore_ResolveReview_Errors(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.ResolveReview(ctx, "nope", "UEI111")
	assert.ErrorIs(t, err, ErrNotFound)

	review, err := s.EnqueueReview(ctx, acme, pendingAcme())
	require.NoError(t, err)
	_, err = s.ResolveReview(ctx, review.ID, "UEI999")
	assert.ErrorIs(t, err, ErrCandidateNotFound)

	_, err = s.GetLink(ctx, "sf", "001A")
	assert.ErrorIs(t, err, ErrNotFound, "failed resolution leaves no link")
}

func TestSQLiteStore_SaveLink_SupersedesOpenReview(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	review, err := s.EnqueueReview(ctx, acme, pendingAcme())
	require.NoError(t, err)
	_, err = s.SaveLink(ctx, acme, resolve.Matched{Candidate: acmeCandidate, Score: 0.9})
	require.NoError(t, err)

	open, err := s.ListReviews(ctx, ReviewFilter{Status: ReviewOpen})
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = s.ResolveReview(ctx, review.ID, "UEI111")
	assert.ErrorIs(t, err, ErrReviewClosed)
}

func TestRecord_Dispatches(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, Record(ctx, s, acme, resolve.Matched{Candidate: acmeCandidate, Score: 0.9}))
	_, err := s.GetLink(ctx, "sf", "001A")
	require.NoError(t, err)

	other := Subject{SourceID: "sf", SubjectID: "002B", Name: "Widget Co"}
	require.NoError(t, Record(ctx, s, other, resolve.NoMatch{SubjectName: "widget"}))
	reviews, err := s.ListReviews(ctx, ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "002B", reviews[0].SubjectID)
	assert.Equal(t, "widget", reviews[0].SubjectName)
}

func TestReviewFilter_Limit(t *testing.T) {
	assert.Equal(t, DefaultReviewLimit, ReviewFilter{}.limit())
	assert.Equal(t, 7, ReviewFilter{Limit: 7}.limit())
	assert.Equal(t, MaxReviewLimit, ReviewFilter{Limit: 10_000}.limit())
}
