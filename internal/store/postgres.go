package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/registry-link/internal/db"
	"github.com/sells-group/registry-link/internal/resolve"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: utcNow}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS registry_links (
	source_id    TEXT NOT NULL,
	subject_id   TEXT NOT NULL,
	subject_name TEXT NOT NULL,
	registry_id  TEXT NOT NULL,
	legal_name   TEXT NOT NULL,
	score        DOUBLE PRECISION NOT NULL,
	candidate    JSONB NOT NULL,
	linked_by    TEXT NOT NULL,
	linked_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source_id, subject_id)
);

CREATE TABLE IF NOT EXISTS review_queue (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_id    TEXT NOT NULL,
	subject_id   TEXT NOT NULL,
	subject_name TEXT NOT NULL,
	disposition  TEXT NOT NULL,
	outcome      JSONB NOT NULL,
	status       TEXT NOT NULL DEFAULT 'open',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at  TIMESTAMPTZ,
	UNIQUE (source_id, subject_id)
);

CREATE INDEX IF NOT EXISTS idx_registry_links_registry_id ON registry_links(registry_id);
CREATE INDEX IF NOT EXISTS idx_review_queue_status ON review_queue(status, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const postgresUpsertLink = `INSERT INTO registry_links
	(source_id, subject_id, subject_name, registry_id, legal_name, score, candidate, linked_by, linked_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (source_id, subject_id) DO UPDATE SET
		subject_name = EXCLUDED.subject_name,
		registry_id = EXCLUDED.registry_id,
		legal_name = EXCLUDED.legal_name,
		score = EXCLUDED.score,
		candidate = EXCLUDED.candidate,
		linked_by = EXCLUDED.linked_by,
		linked_at = EXCLUDED.linked_at`

func upsertLinkPostgres(ctx context.Context, tx pgx.Tx, l *Link) error {
	candidateJSON, err := json.Marshal(l.Candidate)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal candidate")
	}
	_, err = tx.Exec(ctx, postgresUpsertLink,
		l.SourceID, l.SubjectID, l.SubjectName, l.Candidate.ID, l.Candidate.LegalName,
		l.Score, candidateJSON, string(l.LinkedBy), l.LinkedAt)
	return eris.Wrap(err, "postgres: upsert link")
}

func (s *PostgresStore) SaveLink(ctx context.Context, subject Subject, m resolve.Matched) (*Link, error) {
	link := &Link{
		SourceID:    subject.SourceID,
		SubjectID:   subject.SubjectID,
		SubjectName: subject.Name,
		Candidate:   m.Candidate,
		Score:       m.Score,
		LinkedBy:    LinkedByAuto,
		LinkedAt:    s.now(),
	}
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := upsertLinkPostgres(ctx, tx, link); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`UPDATE review_queue SET status = $1, resolved_at = $2 WHERE source_id = $3 AND subject_id = $4 AND status = $5`,
			string(ReviewSuperseded), link.LinkedAt, subject.SourceID, subject.SubjectID, string(ReviewOpen))
		return eris.Wrap(err, "postgres: supersede review")
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (s *PostgresStore) GetLink(ctx context.Context, sourceID, subjectID string) (*Link, error) {
	var l Link
	var candidateJSON []byte
	var linkedBy string
	err := s.pool.QueryRow(ctx,
		`SELECT source_id, subject_id, subject_name, candidate, score, linked_by, linked_at
		 FROM registry_links WHERE source_id = $1 AND subject_id = $2`, sourceID, subjectID,
	).Scan(&l.SourceID, &l.SubjectID, &l.SubjectName, &candidateJSON, &l.Score, &linkedBy, &l.LinkedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get link")
	}
	if err := json.Unmarshal(candidateJSON, &l.Candidate); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal candidate")
	}
	l.LinkedBy = LinkedBy(linkedBy)
	return &l, nil
}

func (s *PostgresStore) EnqueueReview(ctx context.Context, subject Subject, o resolve.Outcome) (*Review, error) {
	view := resolve.View(o)
	outcomeJSON, err := json.Marshal(view)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal outcome")
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
	err = s.pool.QueryRow(ctx,
		`INSERT INTO review_queue (id, source_id, subject_id, subject_name, disposition, outcome, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (source_id, subject_id) DO UPDATE SET
			subject_name = EXCLUDED.subject_name,
			disposition = EXCLUDED.disposition,
			outcome = EXCLUDED.outcome,
			status = EXCLUDED.status,
			created_at = EXCLUDED.created_at,
			resolved_at = NULL
		 RETURNING id`,
		r.ID, r.SourceID, r.SubjectID, r.SubjectName, string(r.Disposition), outcomeJSON,
		string(r.Status), r.CreatedAt,
	).Scan(&r.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: enqueue review")
	}
	return r, nil
}

func (s *PostgresStore) ListReviews(ctx context.Context, filter ReviewFilter) ([]Review, error) {
	query := `SELECT id, source_id, subject_id, subject_name, disposition, outcome, status, created_at, resolved_at
		FROM review_queue WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	if filter.Disposition != "" {
		args = append(args, string(filter.Disposition))
		query += ` AND disposition = ` + placeholder(len(args))
	}
	args = append(args, filter.limit())
	query += ` ORDER BY created_at DESC, id LIMIT ` + placeholder(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reviews")
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var r Review
		var disposition, status string
		var outcomeJSON []byte
		if err := rows.Scan(&r.ID, &r.SourceID, &r.SubjectID, &r.SubjectName, &disposition,
			&outcomeJSON, &status, &r.CreatedAt, &r.ResolvedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review")
		}
		if err := json.Unmarshal(outcomeJSON, &r.Outcome); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal outcome")
		}
		r.Disposition = resolve.Disposition(disposition)
		r.Status = ReviewStatus(status)
		reviews = append(reviews, r)
	}
	return reviews, eris.Wrap(rows.Err(), "postgres: list reviews iterate")
}

func (s *PostgresStore) ResolveReview(ctx context.Context, reviewID, candidateID string) (*Link, error) {
	var link *Link
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var subject Subject
		var outcomeJSON []byte
		var status string
		err := tx.QueryRow(ctx,
			`SELECT source_id, subject_id, subject_name, outcome, status FROM review_queue WHERE id = $1 FOR UPDATE`,
			reviewID,
		).Scan(&subject.SourceID, &subject.SubjectID, &subject.Name, &outcomeJSON, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return eris.Wrap(err, "postgres: get review")
		}
		if ReviewStatus(status) != ReviewOpen {
			return ErrReviewClosed
		}

		var view resolve.OutcomeView
		if err := json.Unmarshal(outcomeJSON, &view); err != nil {
			return eris.Wrap(err, "postgres: unmarshal outcome")
		}
		candidate, score, err := pickCandidate(view, candidateID)
		if err != nil {
			return err
		}

		link = &Link{
			SourceID:    subject.SourceID,
			SubjectID:   subject.SubjectID,
			SubjectName: subject.Name,
			Candidate:   candidate,
			Score:       score,
			LinkedBy:    LinkedByReview,
			LinkedAt:    s.now(),
		}
		if err := upsertLinkPostgres(ctx, tx, link); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE review_queue SET status = $1, resolved_at = $2 WHERE id = $3`,
			string(ReviewLinked), link.LinkedAt, reviewID)
		return eris.Wrap(err, "postgres: close review")
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
