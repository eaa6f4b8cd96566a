package resolve

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Skip reasons.
const (
	SkipEmptyName      = "empty_name"
	SkipMissingSubject = "missing_subject_id"
	SkipDuplicate      = "duplicate"
)

// Request is a resolution for a subject delivered by a source system.
type Request struct {
	SourceID  string `json:"source_id" yaml:"source_id"`
	SubjectID string `json:"subject_id" yaml:"subject_id"`
	Query     `yaml:",inline"`
}

// Result is the engine's answer to a Request. Skipped results carry a
// reason; duplicates and missing subject ids carry no outcome, empty names
// carry an empty NoMatch.
type Result struct {
	Request    Request
	Skipped    bool
	SkipReason string
	Outcome    Outcome
}

// Engine wires dedup, retrieval and classification together.
type Engine struct {
	dedup      Deduplicator
	retriever  *Retriever
	classifier *Classifier
}

// NewEngine creates an engine. A nil deduplicator processes everything.
func NewEngine(dedup Deduplicator, retriever *Retriever, classifier *Classifier) *Engine {
	return &Engine{dedup: dedup, retriever: retriever, classifier: classifier}
}

// Resolve handles one request, honoring dedup.
func (e *Engine) Resolve(ctx context.Context, req Request) Result {
	res := Result{Request: req}

	if Normalize(req.SubjectName) == "" {
		res.Skipped = true
		res.SkipReason = SkipEmptyName
		res.Outcome = NoMatch{SubjectName: req.SubjectName, Sample: []Candidate{}}
		return res
	}

	// Without a subject id every request would share one dedup key.
	if strings.TrimSpace(req.SubjectID) == "" {
		zap.L().Warn("resolve: request without subject id skipped",
			zap.String("source_id", req.SourceID),
			zap.String("subject", req.SubjectName),
		)
		res.Skipped = true
		res.SkipReason = SkipMissingSubject
		return res
	}

	if e.dedup != nil && !e.dedup.ShouldProcess(ctx, DedupKey(req.SourceID, req.SubjectID)) {
		dedupDroppedTotal.Inc()
		zap.L().Debug("resolve: duplicate request dropped",
			zap.String("source_id", req.SourceID),
			zap.String("subject_id", req.SubjectID),
		)
		res.Skipped = true
		res.SkipReason = SkipDuplicate
		return res
	}

	res.Outcome = e.Lookup(ctx, req.Query)
	return res
}

// Lookup resolves a query without dedup. It always returns an outcome.
func (e *Engine) Lookup(ctx context.Context, q Query) Outcome {
	if Normalize(q.SubjectName) == "" {
		return NoMatch{SubjectName: q.SubjectName, Sample: []Candidate{}}
	}

	candidates := e.retriever.Retrieve(ctx, q)
	outcome := e.classifier.Classify(q, candidates)

	resolutionsTotal.WithLabelValues(string(outcome.Disposition())).Inc()
	fields := []zap.Field{
		zap.String("subject", q.SubjectName),
		zap.String("disposition", string(outcome.Disposition())),
		zap.Int("candidates", len(candidates)),
	}
	if m, ok := outcome.(Matched); ok {
		fields = append(fields, zap.String("registry_id", m.Candidate.ID), zap.Float64("score", m.Score))
	}
	zap.L().Info("resolve: classified", fields...)
	return outcome
}

// ResolveBatch resolves every request concurrently, at most concurrency at
// a time, and returns once all are done. Results keep the input order.
func (e *Engine) ResolveBatch(ctx context.Context, reqs []Request, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]Result, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = e.Resolve(gctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
