// Package api exposes the twin over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/twind/internal/conversation"
	"github.com/kalambet/twind/internal/ingest"
	"github.com/kalambet/twind/internal/metrics"
	"github.com/kalambet/twind/internal/pipeline"
	"github.com/kalambet/twind/internal/retrieval"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB

	MaxQuestionChars       = 500
	MaxJobDescriptionChars = 10000

	defaultSimilarLimit = 5
	maxSimilarLimit     = 20
)

// ErrValidation marks a request rejected before any work was done.
var ErrValidation = errors.New("validation failed")

// Answerer is the question-answering surface of the pipeline.
type Answerer interface {
	Ask(ctx context.Context, question string) pipeline.Result
	AskStream(ctx context.Context, question string, emit pipeline.EmitFunc) pipeline.Result
	AnalyzeJobFit(ctx context.Context, jobDescription string) (pipeline.JobFit, error)
	Lookup(ctx context.Context, section pipeline.Section, focus string) ([]conversation.Source, error)
}

// Conversations is the feedback and history surface.
type Conversations interface {
	Get(ctx context.Context, id string) (conversation.Conversation, error)
	SubmitFeedback(ctx context.Context, id string, fb conversation.Feedback) (conversation.FeedbackResult, error)
	SimilarTo(ctx context.Context, id string, limit int) ([]conversation.SimilarConversation, error)
	LearningMetrics(ctx context.Context) (conversation.Metrics, error)
	ListImprovementTasks(ctx context.Context, status string) ([]conversation.ImprovementTask, error)
	ResolveImprovementTask(ctx context.Context, id string) (conversation.ImprovementTask, error)
}

// Corpus produces the profile records to index.
type Corpus interface {
	Invalidate()
	Records() ([]retrieval.Record, error)
}

// Reloader replaces the indexed corpus.
type Reloader interface {
	Reload(ctx context.Context, chunks []retrieval.Record) (ingest.ReloadResult, error)
}

// Deps holds the collaborators of the HTTP handler. Gatherer, Metrics and
// Limiter are optional.
type Deps struct {
	Answerer      Answerer
	Conversations Conversations
	Corpus        Corpus
	Reloader      Reloader
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Limiter       *RateLimiter
	Token         string
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.Limiter.Middleware)
			r.Post("/ask", handleAsk(deps))
			r.Post("/ask/stream", handleAskStream(deps))
			r.Post("/job-fit", handleJobFit(deps))
		})

		r.Post("/feedback", handleFeedback(deps))
		r.Get("/metrics", handleLearningMetrics(deps))
		r.Get("/conversations/{id}", handleGetConversation(deps))
		r.Get("/conversations/{id}/similar", handleSimilar(deps))
		r.Get("/improvements", handleListImprovements(deps))

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(deps.Token))
			r.Post("/reload", handleReload(deps))
			r.Post("/improvements/{id}/resolve", handleResolveImprovement(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Question string `json:"question"`
}

type attempt struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

type answerMetrics struct {
	Path       pipeline.Path `json:"path"`
	Confidence float64       `json:"confidence"`
	Attempts   []attempt     `json:"attempts"`
}

type askResponse struct {
	Answer         string                `json:"answer"`
	Sources        []conversation.Source `json:"sources"`
	Success        bool                  `json:"success"`
	ProcessingTime int64                 `json:"processingTime"`
	ConversationID string                `json:"conversationId,omitempty"`
	Metrics        *answerMetrics        `json:"metrics,omitempty"`
	Error          string                `json:"error,omitempty"`
}

func toAskResponse(res pipeline.Result) askResponse {
	attempts := make([]attempt, len(res.Attempts))
	for i, a := range res.Attempts {
		attempts[i] = attempt{Stage: a.Stage, Error: a.Message()}
	}
	resp := askResponse{
		Answer:         res.Answer,
		Sources:        res.Sources,
		Success:        res.Success,
		ProcessingTime: res.ProcessingTime.Milliseconds(),
		Metrics: &answerMetrics{
			Path:       res.Path,
			Confidence: res.Confidence,
			Attempts:   attempts,
		},
	}
	if resp.Sources == nil {
		resp.Sources = []conversation.Source{}
	}
	if res.Success {
		resp.ConversationID = res.ConversationID
	} else if res.Err != nil {
		resp.Error = "I couldn't search my background right now. Please try again shortly."
	}
	return resp
}

// decodeQuestion reads the request body into dst and validates the text
// returned by field.
func decodeQuestion[T any](w http.ResponseWriter, r *http.Request, dst *T, field func(*T) string, maxChars int) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		validationError(w, "invalid request body: %v", err)
		return "", false
	}
	q := strings.TrimSpace(field(dst))
	if err := validateText(q, maxChars); err != nil {
		validationError(w, "%v", err)
		return "", false
	}
	return q, true
}

func validateText(q string, maxChars int) error {
	if q == "" {
		return fmt.Errorf("%w: question is required", ErrValidation)
	}
	if n := utf8.RuneCountInString(q); n > maxChars {
		return fmt.Errorf("%w: question is %d characters, the limit is %d", ErrValidation, n, maxChars)
	}
	return nil
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		q, ok := decodeQuestion(w, r, &req, func(a *askRequest) string { return a.Question }, MaxQuestionChars)
		if !ok {
			return
		}

		res := deps.Answerer.Ask(r.Context(), q)
		status := http.StatusOK
		if !res.Success {
			status = http.StatusServiceUnavailable
			slog.Error("answering question failed", "error", res.Err)
		}
		writeJSON(w, status, toAskResponse(res))
	}
}

type jobFitRequest struct {
	Question       string `json:"question"`
	JobDescription string `json:"jobDescription"`
}

func (r *jobFitRequest) text() string {
	if strings.TrimSpace(r.JobDescription) != "" {
		return r.JobDescription
	}
	return r.Question
}

type jobFitResponse struct {
	Analysis       string                `json:"analysis"`
	Sources        []conversation.Source `json:"sources"`
	Success        bool                  `json:"success"`
	ProcessingTime int64                 `json:"processingTime"`
}

func handleJobFit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jobFitRequest
		jd, ok := decodeQuestion(w, r, &req, (*jobFitRequest).text, MaxJobDescriptionChars)
		if !ok {
			return
		}

		fit, err := deps.Answerer.AnalyzeJobFit(r.Context(), jd)
		if err != nil {
			slog.Error("job fit analysis failed", "error", err)
			httpError(w, http.StatusServiceUnavailable, "api_error", "job fit analysis failed")
			return
		}
		writeJSON(w, http.StatusOK, jobFitResponse{
			Analysis:       fit.Analysis,
			Sources:        fit.Sources,
			Success:        fit.Generated,
			ProcessingTime: fit.ProcessingTime.Milliseconds(),
		})
	}
}

type feedbackRequest struct {
	ConversationID string `json:"conversationId"`
	Feedback       string `json:"feedback"`
}

type feedbackResponse struct {
	conversation.FeedbackResult
	Success bool `json:"success"`
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			validationError(w, "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.ConversationID) == "" {
			validationError(w, "conversationId is required")
			return
		}

		fb := conversation.Feedback(req.Feedback)
		res, err := deps.Conversations.SubmitFeedback(r.Context(), req.ConversationID, fb)
		if err != nil {
			conversationError(w, err)
			return
		}
		deps.Metrics.Feedback(string(fb))
		writeJSON(w, http.StatusOK, feedbackResponse{FeedbackResult: res, Success: true})
	}
}

func handleLearningMetrics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.Conversations.LearningMetrics(r.Context())
		if err != nil {
			conversationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func handleGetConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := deps.Conversations.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			conversationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func handleSimilar(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultSimilarLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				validationError(w, "limit must be a positive integer")
				return
			}
			limit = min(n, maxSimilarLimit)
		}

		similar, err := deps.Conversations.SimilarTo(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			conversationError(w, err)
			return
		}
		if similar == nil {
			similar = []conversation.SimilarConversation{}
		}
		writeJSON(w, http.StatusOK, similar)
	}
}

func handleListImprovements(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		switch status {
		case "":
			status = "pending"
		case "all":
			status = ""
		case "pending", "resolved":
		default:
			validationError(w, "status must be pending, resolved or all")
			return
		}

		tasks, err := deps.Conversations.ListImprovementTasks(r.Context(), status)
		if err != nil {
			conversationError(w, err)
			return
		}
		if tasks == nil {
			tasks = []conversation.ImprovementTask{}
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

func handleResolveImprovement(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, err := deps.Conversations.ResolveImprovementTask(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			conversationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

type reloadResponse struct {
	ingest.ReloadResult
	Success    bool  `json:"success"`
	DurationMs int64 `json:"durationMs"`
}

func handleReload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		deps.Corpus.Invalidate()
		records, err := deps.Corpus.Records()
		if err != nil {
			deps.Metrics.Reloaded(0, err)
			httpError(w, http.StatusInternalServerError, "api_error", "loading profile: %v", err)
			return
		}

		res, err := deps.Reloader.Reload(r.Context(), records)
		deps.Metrics.Reloaded(res.Chunks+res.Reinforcements, err)
		if err != nil {
			slog.Error("reloading index failed", "error", err)
			httpError(w, http.StatusBadGateway, "api_error", "reloading index: %v", err)
			return
		}
		slog.Info("index reloaded", "chunks", res.Chunks, "reinforcements", res.Reinforcements)
		writeJSON(w, http.StatusOK, reloadResponse{
			ReloadResult: res,
			Success:      true,
			DurationMs:   time.Since(start).Milliseconds(),
		})
	}
}

// conversationError maps conversation service errors to HTTP statuses.
func conversationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrInvalidFeedback):
		validationError(w, "%v", err)
	case errors.Is(err, conversation.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, retrieval.ErrRetrieval):
		slog.Error("retrieval failed", "error", err)
		httpError(w, http.StatusServiceUnavailable, "api_error", "search is unavailable")
	default:
		slog.Error("conversation request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response failed", "error", err)
	}
}

func validationError(w http.ResponseWriter, format string, args ...any) {
	httpError(w, http.StatusBadRequest, "validation_error", format, args...)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
