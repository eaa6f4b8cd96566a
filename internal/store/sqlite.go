package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/registry-link/internal/resolve"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: utcNow}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS registry_links (
	source_id    TEXT NOT NULL,
	subject_id   TEXT NOT NULL,
	subject_name TEXT NOT NULL,
	registry_id  TEXT NOT NULL,
	legal_name   TEXT NOT NULL,
	score        REAL NOT NULL,
	candidate    TEXT NOT NULL,
	linked_by    TEXT NOT NULL,
	linked_at    DATETIME NOT NULL,
	PRIMARY KEY (source_id, subject_id)
);

CREATE TABLE IF NOT EXISTS review_queue (
	id           TEXT PRIMARY KEY,
	source_id    TEXT NOT NULL,
	subject_id   TEXT NOT NULL,
	subject_name TEXT NOT NULL,
	disposition  TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'open',
	created_at   DATETIME NOT NULL,
	resolved_at  DATETIME,
	UNIQUE (source_id, subject_id)
);

CREATE INDEX IF NOT EXISTS idx_registry_links_registry_id ON registry_links(registry_id);
CREATE INDEX IF NOT EXISTS idx_review_queue_status ON review_queue(status, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsertLink = `INSERT INTO registry_links
	(source_id, subject_id, subject_name, registry_id, legal_name, score, candidate, linked_by, linked_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (source_id, subject_id) DO UPDATE SET
		subject_name = excluded.subject_name,
		registry_id = excluded.registry_id,
		legal_name = excluded.legal_name,
		score = excluded.score,
		candidate = excluded.candidate,
		linked_by = excluded.linked_by,
		linked_at = excluded.linked_at`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertLinkSQLite(ctx context.Context, ex execer, l *Link) error {
	candidateJSON, err := json.Marshal(l.Candidate)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal candidate")
	}
	_, err = ex.ExecContext(ctx, sqliteUpsertLink,
		l.SourceID, l.SubjectID, l.SubjectName, l.Candidate.ID, l.Candidate.LegalName,
		l.Score, string(candidateJSON), string(l.LinkedBy), l.LinkedAt)
	return eris.Wrap(err, "sqlite: upsert link")
}

func (s *SQLiteStore) SaveLink(ctx context.Context, subject Subject, m resolve.Matched) (*Link, error) {
	link := &Link{
		SourceID:    subject.SourceID,
		SubjectID:   subject.SubjectID,
		SubjectName: subject.Name,
		Candidate:   m.Candidate,
		Score:       m.Score,
		LinkedBy:    LinkedByAuto,
		LinkedAt:    s.now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin save link")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertLinkSQLite(ctx, tx, link); err != nil {
		return nil, err
	}
	// A fresh auto-link settles any review still open for the subject.
	_, err = tx.ExecContext(ctx,
		`UPDATE review_queue SET status = ?, resolved_at = ? WHERE source_id = ? AND subject_id = ? AND status = ?`,
		string(ReviewSuperseded), link.LinkedAt, subject.SourceID, subject.SubjectID, string(ReviewOpen))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: supersede review")
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit save link")
	}
	return link, nil
}

func (s *SQLiteStore) GetLink(ctx context.Context, sourceID, subjectID string) (*Link, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source_id, subject_id, subject_name, candidate, score, linked_by, linked_at
		 FROM registry_links WHERE source_id = ? AND subject_id = ?`, sourceID, subjectID)

	var l Link
	var candidateJSON, linkedBy string
	err := row.Scan(&l.SourceID, &l.SubjectID, &l.SubjectName, &candidateJSON, &l.Score, &linkedBy, &l.LinkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get link")
	}
	if err := json.Unmarshal([]byte(candidateJSON), &l.Candidate); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal candidate")
	}
	l.LinkedBy = LinkedBy(linkedBy)
	return &l, nil
}

func (s *SQLiteStore) EnqueueReview(ctx context.Context, subject Subject, o resolve.Outcome) (*Review, error) {
	view := resolve.View(o)
	outcomeJSON, err := json.Marshal(view)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal outcome")
	}

	r := &Review{
		ID:          uuid.New().String(),
		SourceID:    subject.SourceID,
		SubjectID:   subject.SubjectID,
		SubjectName: subjectName(subject, view),
		Disposition: o.Disposition(),
		Outcome:     view,
		Status:      ReviewOpen,
		CreatedAt:   s.now(),
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO review_queue (id, source_id, subject_id, subject_name, disposition, outcome, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source_id, subject_id) DO UPDATE SET
			subject_name = excluded.subject_name,
			disposition = excluded.disposition,
			outcome = excluded.outcome,
			status = excluded.status,
			created_at = excluded.created_at,
			resolved_at = NULL
		 RETURNING id`,
		r.ID, r.SourceID, r.SubjectID, r.SubjectName, string(r.Disposition), string(outcomeJSON),
		string(r.Status), r.CreatedAt,
	).Scan(&r.ID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: enqueue review")
	}
	return r, nil
}

func (s *SQLiteStore) ListReviews(ctx context.Context, filter ReviewFilter) ([]Review, error) {
	query := `SELECT id, source_id, subject_id, subject_name, disposition, outcome, status, created_at, resolved_at
		FROM review_queue WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Disposition != "" {
		query += ` AND disposition = ?`
		args = append(args, string(filter.Disposition))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, filter.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reviews")
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var r Review
		var disposition, status, outcomeJSON string
		var resolvedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.SourceID, &r.SubjectID, &r.SubjectName, &disposition,
			&outcomeJSON, &status, &r.CreatedAt, &resolvedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review")
		}
		if err := json.Unmarshal([]byte(outcomeJSON), &r.Outcome); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal outcome")
		}
		r.Disposition = resolve.Disposition(disposition)
		r.Status = ReviewStatus(status)
		if resolvedAt.Valid {
			t := resolvedAt.Time
			r.ResolvedAt = &t
		}
		reviews = append(reviews, r)
	}
	return reviews, eris.Wrap(rows.Err(), "sqlite: list reviews iterate")
}

func (s *SQLiteStore) ResolveReview(ctx context.Context, reviewID, candidateID string) (*Link, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin resolve review")
	}
	defer tx.Rollback() //nolint:errcheck

	var subject Subject
	var outcomeJSON, status string
	err = tx.QueryRowContext(ctx,
		`SELECT source_id, subject_id, subject_name, outcome, status FROM review_queue WHERE id = ?`, reviewID,
	).Scan(&subject.SourceID, &subject.SubjectID, &subject.Name, &outcomeJSON, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get review")
	}
	if ReviewStatus(status) != ReviewOpen {
		return nil, ErrReviewClosed
	}

	var view resolve.OutcomeView
	if err := json.Unmarshal([]byte(outcomeJSON), &view); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal outcome")
	}
	candidate, score, err := pickCandidate(view, candidateID)
	if err != nil {
		return nil, err
	}

	link := &Link{
		SourceID:    subject.SourceID,
		SubjectID:   subject.SubjectID,
		SubjectName: subject.Name,
		Candidate:   candidate,
		Score:       score,
		LinkedBy:    LinkedByReview,
		LinkedAt:    s.now(),
	}
	if err := upsertLinkSQLite(ctx, tx, link); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE review_queue SET status = ?, resolved_at = ? WHERE id = ?`,
		string(ReviewLinked), link.LinkedAt, reviewID); err != nil {
		return nil, eris.Wrap(err, "sqlite: close review")
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit resolve review")
	}
	return link, nil
}

func utcNow() time.Time { return time.Now().UTC() }
