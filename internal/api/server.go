// Package api exposes the analysis pipeline over HTTP. Authentication is an
// upstream concern; callers identify themselves with a caller_id field used
// for rate limiting and budget accounting.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/verseworks/prosody/internal/observe"
	"github.com/verseworks/prosody/internal/pipeline"
	"github.com/verseworks/prosody/internal/prompt"
	"github.com/verseworks/prosody/internal/selector"
)

// Observer runs one analysis. Satisfied by *pipeline.Pipeline.
type Observer interface {
	Observe(ctx context.Context, req pipeline.Request) (*observe.Result, error)
}

type Server struct {
	router   *chi.Mux
	port     int
	observer Observer
	logger   *slog.Logger
}

func NewServer(port int, observer Observer, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		observer: observer,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/status", s.status)
	router.Post("/api/v1/analyze", s.analyze)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// AnalyzeRequest is the POST /api/v1/analyze payload.
type AnalyzeRequest struct {
	Text            string  `json:"text"`
	Language        string  `json:"language,omitempty"`
	CallerID        string  `json:"caller_id,omitempty"`
	Model           string  `json:"model,omitempty"`
	ComplexityHint  string  `json:"complexity_hint,omitempty"`
	Sensitivity     string  `json:"sensitivity,omitempty"`
	PhoneticDepth   string  `json:"phonetic_depth,omitempty"`
	CulturalContext bool    `json:"cultural_context,omitempty"`
	PreferredModel  string  `json:"preferred_model,omitempty"`
	MonthlyBudget   float64 `json:"monthly_budget_usd,omitempty"`
	AutoUpgrade     bool    `json:"auto_upgrade,omitempty"`
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	caller := req.CallerID
	if caller == "" {
		caller = "anonymous"
	}

	result, err := s.observer.Observe(r.Context(), pipeline.Request{
		Text:           req.Text,
		Language:       req.Language,
		Caller:         caller,
		ExplicitModel:  req.Model,
		ComplexityHint: req.ComplexityHint,
		Preferences: selector.Preferences{
			PreferredModel:   req.PreferredModel,
			MonthlyBudgetUSD: req.MonthlyBudget,
			AutoUpgrade:      req.AutoUpgrade,
		},
		Prompt: prompt.Options{
			Sensitivity:     prompt.Sensitivity(req.Sensitivity),
			PhoneticDepth:   prompt.Depth(req.PhoneticDepth),
			CulturalContext: req.CulturalContext,
		},
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeFailure maps the error taxonomy onto HTTP statuses. Each external
// service kind keeps its own message so callers can tell them apart.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var verr *observe.ValidationError
	var rerr *observe.RateLimitError
	var berr *observe.BudgetExceededError
	var serr *observe.ExternalServiceError

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &rerr):
		writeError(w, http.StatusTooManyRequests, rerr.Error())
	case errors.As(err, &berr):
		writeError(w, http.StatusPaymentRequired, berr.Error())
	case errors.As(err, &serr):
		status := http.StatusServiceUnavailable
		if serr.Kind == observe.ServiceAuth {
			status = http.StatusBadGateway
		}
		writeError(w, status, serr.Error())
	default:
		s.logger.Error("analyze failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "prosody",
		"status":  "ready",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
