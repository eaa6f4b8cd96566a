package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sells-group/registry-link/internal/crm"
	"github.com/sells-group/registry-link/internal/resolve"
	"github.com/sells-group/registry-link/internal/store"
)

// maxBodyBytes caps webhook payloads.
const maxBodyBytes = 4 << 20

// companyEvent is one CRM change notification.
type companyEvent struct {
	SourceID string `json:"source_id"`
	ObjectID string `json:"object_id"`
	Name     string `json:"name"`
	State    string `json:"state"`
	Domain   string `json:"domain"`
}

func (e companyEvent) request() resolve.Request {
	return resolve.Request{
		SourceID:  strings.TrimSpace(e.SourceID),
		SubjectID: strings.TrimSpace(e.ObjectID),
		Query: resolve.Query{
			SubjectName: e.Name,
			StateHint:   e.State,
			DomainHint:  e.Domain,
		},
	}
}

// eventResult reports what happened to one event.
type eventResult struct {
	SourceID    string               `json:"source_id"`
	ObjectID    string               `json:"object_id"`
	Skipped     bool                 `json:"skipped"`
	SkipReason  string               `json:"skip_reason,omitempty"`
	Disposition resolve.Disposition  `json:"disposition,omitempty"`
	Outcome     *resolve.OutcomeView `json:"outcome,omitempty"`
}

type webhookSummary struct {
	Matched         int `json:"matched"`
	Pending         int `json:"pending"`
	NoMatch         int `json:"no_match"`
	Skipped         int `json:"skipped"`
	ProjectionFails int `json:"projection_failures"`
}

type webhookResponse struct {
	Results []eventResult  `json:"results"`
	Summary webhookSummary `json:"summary"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	var events []companyEvent
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&events); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "body must be a JSON array of company events")
		return
	}
	if len(events) > s.opts.MaxBatchSize {
		writeError(w, http.StatusRequestEntityTooLarge, "too_many_events",
			"at most "+strconv.Itoa(s.opts.MaxBatchSize)+" events per request")
		return
	}

	reqs := make([]resolve.Request, len(events))
	for i, e := range events {
		if strings.TrimSpace(e.SourceID) == "" || strings.TrimSpace(e.ObjectID) == "" {
			writeError(w, http.StatusBadRequest, "bad_request",
				"event "+strconv.Itoa(i)+": source_id and object_id are required")
			return
		}
		reqs[i] = e.request()
	}
	results := s.resolver.ResolveBatch(ctx, reqs, s.opts.BatchConcurrency)

	resp := webhookResponse{Results: make([]eventResult, len(results))}
	var updates []crm.Update
	for i, res := range results {
		er := eventResult{
			SourceID:   res.Request.SourceID,
			ObjectID:   res.Request.SubjectID,
			Skipped:    res.Skipped,
			SkipReason: res.SkipReason,
		}
		if res.Outcome != nil {
			view := resolve.View(res.Outcome)
			er.Disposition = res.Outcome.Disposition()
			er.Outcome = &view
		}
		resp.Results[i] = er

		if res.Skipped {
			resp.Summary.Skipped++
			continue
		}
		switch res.Outcome.Disposition() {
		case resolve.DispositionMatched:
			resp.Summary.Matched++
		case resolve.DispositionPending:
			resp.Summary.Pending++
		case resolve.DispositionNoMatch:
			resp.Summary.NoMatch++
		}

		subject := store.Subject{SourceID: res.Request.SourceID, SubjectID: res.Request.SubjectID, Name: res.Request.SubjectName}
		if err := store.Record(ctx, s.store, subject, res.Outcome); err != nil {
			zap.L().Error("server: record outcome failed",
				zap.String("request_id", reqID),
				zap.String("source_id", subject.SourceID),
				zap.String("subject_id", subject.SubjectID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "internal_error", "")
			return
		}
		if res.Request.SourceID == crm.SourceSalesforce {
			updates = append(updates, crm.Update{AccountID: res.Request.SubjectID, Outcome: res.Outcome})
		}
	}

	if len(updates) > 0 {
		failed, err := s.projector.ProjectBatch(ctx, updates)
		if err != nil {
			zap.L().Error("server: projection failed",
				zap.String("request_id", reqID),
				zap.Int("accounts", len(updates)),
				zap.Error(err),
			)
			failed = len(updates)
		}
		resp.Summary.ProjectionFails = failed
	}

	zap.L().Info("server: webhook processed",
		zap.String("request_id", reqID),
		zap.Int("events", len(events)),
		zap.Int("matched", resp.Summary.Matched),
		zap.Int("pending", resp.Summary.Pending),
		zap.Int("no_match", resp.Summary.NoMatch),
		zap.Int("skipped", resp.Summary.Skipped),
	)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := resolve.Query{
		SubjectName: r.URL.Query().Get("name"),
		StateHint:   r.URL.Query().Get("state"),
		DomainHint:  r.URL.Query().Get("domain"),
	}
	if strings.TrimSpace(q.SubjectName) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}
	writeJSON(w, http.StatusOK, resolve.View(s.resolver.Lookup(r.Context(), q)))
}

var reviewStatuses = map[string]store.ReviewStatus{
	"":           store.ReviewOpen,
	"open":       store.ReviewOpen,
	"linked":     store.ReviewLinked,
	"superseded": store.ReviewSuperseded,
	"all":        "",
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	status, ok := reviewStatuses[params.Get("status")]
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "status must be open, linked, superseded or all")
		return
	}
	filter := store.ReviewFilter{Status: status}

	switch d := resolve.Disposition(params.Get("disposition")); d {
	case "", resolve.DispositionPending, resolve.DispositionNoMatch:
		filter.Disposition = d
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "disposition must be pending or no_match")
		return
	}

	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	reviews, err := s.store.ListReviews(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list reviews failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if reviews == nil {
		reviews = []store.Review{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

type linkRequest struct {
	CandidateID string `json:"candidate_id"`
}

func (s *Server) handleLinkReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reviewID := chi.URLParam(r, "id")

	var body linkRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil || body.CandidateID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "candidate_id is required")
		return
	}

	link, err := s.store.ResolveReview(ctx, reviewID, body.CandidateID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "review not found")
		return
	case errors.Is(err, store.ErrReviewClosed):
		writeError(w, http.StatusConflict, "review_closed", "review is no longer open")
		return
	case errors.Is(err, store.ErrCandidateNotFound):
		writeError(w, http.StatusUnprocessableEntity, "unknown_candidate", "candidate is not part of this review")
		return
	case err != nil:
		zap.L().Error("server: resolve review failed", zap.String("review_id", reviewID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	zap.L().Info("server: review linked",
		zap.String("review_id", reviewID),
		zap.String("subject_id", link.SubjectID),
		zap.String("registry_id", link.Candidate.ID),
	)
	if link.SourceID == crm.SourceSalesforce {
		matched := resolve.Matched{SubjectName: link.SubjectName, Candidate: link.Candidate, Score: link.Score}
		if err := s.projector.Project(ctx, link.SubjectID, matched); err != nil {
			zap.L().Warn("server: project reviewed link failed", zap.String("review_id", reviewID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, link)
}
