package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/antoniostano/phonedesk/internal/config"
	"github.com/antoniostano/phonedesk/internal/observability"
	"github.com/antoniostano/phonedesk/internal/turn"
)

const (
	turnPath   = "/v1/voice/turn"
	statusPath = "/v1/voice/status"
)

// TurnHandler runs dialogue turns and retires finished calls.
type TurnHandler interface {
	Handle(ctx context.Context, req turn.Request) turn.Response
	Retire(ctx context.Context, callSid, reason string)
}

type Server struct {
	cfg       config.Config
	turns     TurnHandler
	metrics   *observability.Metrics
	storeMode string
}

func New(cfg config.Config, turns TurnHandler, metrics *observability.Metrics, storeMode string) *Server {
	return &Server{
		cfg:       cfg,
		turns:     turns,
		metrics:   metrics,
		storeMode: storeMode,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post(turnPath, s.handleTurn)
	r.Post(statusPath, s.handleStatus)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"call_store_mode":  s.storeMode,
		"classifier":       s.classifierMode(),
		"scheduling_mode":  s.schedulingMode(),
		"clinic_time_zone": s.cfg.ClinicTimezone,
	})
}

// handleTurn answers the telephony provider's speech webhook with markup.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	req := turn.Request{
		CallSid: strings.TrimSpace(r.PostForm.Get("CallSid")),
		From:    strings.TrimSpace(r.PostForm.Get("From")),
		To:      strings.TrimSpace(r.PostForm.Get("To")),
		Speech:  r.PostForm.Get("SpeechResult"),
		Digits:  strings.TrimSpace(r.PostForm.Get("Digits")),
	}
	if req.CallSid == "" {
		respondError(w, http.StatusBadRequest, "missing_call_sid", "form field CallSid is required")
		return
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("turn")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_turn", "query parameter turn must be a non-negative integer")
			return
		}
		req.Turn = n
	}

	resp := s.turns.Handle(r.Context(), req)
	respondTwiML(w, renderTwiML(resp, languageForRegion(s.cfg.ClinicRegion)))
}

// terminalCallStatuses are the call statuses after which no further turn
// webhook arrives.
var terminalCallStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	callSid := strings.TrimSpace(r.PostForm.Get("CallSid"))
	if callSid == "" {
		respondError(w, http.StatusBadRequest, "missing_call_sid", "form field CallSid is required")
		return
	}
	status := strings.ToLower(strings.TrimSpace(r.PostForm.Get("CallStatus")))
	if terminalCallStatuses[status] {
		s.turns.Retire(r.Context(), callSid, status)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) classifierMode() string {
	if s.cfg.ClassifierEnabled() {
		return "llm+keyword"
	}
	return "keyword"
}

func (s *Server) schedulingMode() string {
	if strings.TrimSpace(s.cfg.SchedulingBaseURL) == "" {
		return "in-memory"
	}
	return "http"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
