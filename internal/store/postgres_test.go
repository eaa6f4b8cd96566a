package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/registry-link/internal/resolve"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, now: func() time.Time { return fixedNow }}
	return s, mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS registry_links`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveLink(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO registry_links`).
		WithArgs("sf", "001A", "Acme Corp", "UEI111", "ACME CORPORATION", 0.91,
			pgxmock.AnyArg(), "auto", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE review_queue SET status = \$1`).
		WithArgs("superseded", fixedNow, "sf", "001A", "open").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	link, err := s.SaveLink(context.Background(), acme, resolve.Matched{Candidate: acmeCandidate, Score: 0.91})
	require.NoError(t, err)
	assert.Equal(t, LinkedByAuto, link.LinkedBy)
	assert.Equal(t, fixedNow, link.LinkedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveLink_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO registry_links`).
		WithArgs(anyArgs(9)...).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	_, err := s.SaveLink(context.Background(), acme, resolve.Matched{Candidate: acmeCandidate, Score: 0.91})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert link")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLink(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	candidateJSON, err := json.Marshal(acmeCandidate)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT source_id, subject_id, subject_name, candidate`).
		WithArgs("sf", "001A").
		WillReturnRows(mock.NewRows([]string{
			"source_id", "subject_id", "subject_name", "candidate", "score", "linked_by", "linked_at",
		}).AddRow("sf", "001A", "Acme Corp", candidateJSON, 0.91, "review", fixedNow))

	link, err := s.GetLink(context.Background(), "sf", "001A")
	require.NoError(t, err)
	assert.Equal(t, acmeCandidate, link.Candidate)
	assert.Equal(t, LinkedByReview, link.LinkedBy)
	assert.Equal(t, fixedNow, link.LinkedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLink_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM registry_links WHERE source_id = \$1 AND subject_id = \$2`).
		WithArgs("sf", "missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetLink(context.Background(), "sf", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnqueueReview(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO review_queue`).
		WithArgs(pgxmock.AnyArg(), "sf", "001A", "Acme Corp", "pending", pgxmock.AnyArg(), "open", fixedNow).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow("existing-id"))

	r, err := s.EnqueueReview(context.Background(), acme, pendingAcme())
	require.NoError(t, err)
	assert.Equal(t, "existing-id", r.ID)
	assert.Equal(t, resolve.DispositionPending, r.Disposition)
	assert.Len(t, r.Outcome.Candidates, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListReviews_BuildsPlaceholders(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`AND status = \$1 AND disposition = \$2 ORDER BY created_at DESC, id LIMIT \$3`).
		WithArgs("open", "no_match", 10).
		WillReturnRows(mock.NewRows([]string{
			"id", "source_id", "subject_id", "subject_name", "disposition", "outcome", "status", "created_at", "resolved_at",
		}))

	reviews, err := s.ListReviews(context.Background(), ReviewFilter{
		Status: ReviewOpen, Disposition: resolve.DispositionNoMatch, Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, reviews)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListReviews_DispositionOnly(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE 1=1 AND disposition = \$1 ORDER BY created_at DESC, id LIMIT \$2`).
		WithArgs("pending", DefaultReviewLimit).
		WillReturnError(errors.New("connection reset"))

	_, err := s.ListReviews(context.Background(), ReviewFilter{Disposition: resolve.DispositionPending})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list reviews")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveReview(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	outcomeJSON, err := json.Marshal(resolve.View(pendingAcme()))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM review_queue WHERE id = \$1 FOR UPDATE`).
		WithArgs("r1").
		WillReturnRows(mock.NewRows([]string{"source_id", "subject_id", "subject_name", "outcome", "status"}).
			AddRow("sf", "001A", "Acme Corp", outcomeJSON, "open"))
	mock.ExpectExec(`INSERT INTO registry_links`).
		WithArgs("sf", "001A", "Acme Corp", "UEI222", "ACME CORP HOLDINGS", 0.51,
			pgxmock.AnyArg(), "review", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE review_queue SET status = \$1, resolved_at = \$2 WHERE id = \$3`).
		WithArgs("linked", fixedNow, "r1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	link, err := s.ResolveReview(context.Background(), "r1", "UEI222")
	require.NoError(t, err)
	assert.Equal(t, "UEI222", link.Candidate.ID)
	assert.Equal(t, LinkedByReview, link.LinkedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveReview_Closed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM review_queue WHERE id = \$1 FOR UPDATE`).
		WithArgs("r1").
		WillReturnRows(mock.NewRows([]string{"source_id", "subject_id", "subject_name", "outcome", "status"}).
			AddRow("sf", "001A", "Acme Corp", []byte(`{}`), "linked"))
	mock.ExpectRollback()

	_, err := s.ResolveReview(context.Background(), "r1", "UEI222")
	assert.ErrorIs(t, err, ErrReviewClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveReview_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM review_queue WHERE id = \$1 FOR UPDATE`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.ResolveReview(context.Background(), "missing", "UEI222")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	closed := false
	s := &PostgresStore{closeFn: func() { closed = true }}
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
