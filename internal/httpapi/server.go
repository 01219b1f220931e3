package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/antoniostano/backendmcp/internal/config"
	"github.com/antoniostano/backendmcp/internal/observability"
	"github.com/antoniostano/backendmcp/internal/policy"
	"github.com/antoniostano/backendmcp/internal/tasks"
)

type Server struct {
	cfg      config.Config
	tasks    *tasks.Manager
	mcp      http.Handler
	metrics  *observability.Metrics
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	wsReadTimeout time.Duration
}

// New builds the HTTP surface. mcpHandler may be nil, in which case /mcp is
// not mounted.
func New(cfg config.Config, manager *tasks.Manager, mcpHandler http.Handler, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		tasks:   manager,
		mcp:     mcpHandler,
		metrics: metrics,
		logger:  logger.With().Str("component", "httpapi").Logger(),

		wsReadTimeout: defaultWSReadTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireSharedSecret)

		if s.mcp != nil {
			r.Handle("/mcp", s.mcp)
		}

		r.Get("/v1/tasks", s.handleListTasks)
		r.Post("/v1/tasks", s.handleCreateTask)
		r.Get("/v1/tasks/events", s.handleTaskEventsWS)
		r.Get("/v1/tasks/{id}", s.handleGetTask)
		r.Delete("/v1/tasks/{id}", s.handleRemoveTask)
		r.Post("/v1/tasks/{id}/complete", s.handleCompleteTask)
		r.Post("/v1/sessions/{session_id}/next", s.handleNextTask)
	})

	return r
}

func (s *Server) requireSharedSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !policy.AuthorizeRequest(s.cfg.SharedSecret, r) {
			s.logger.Warn().
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Msg("rejected request without valid shared secret")
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid shared secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"task_store_mode": s.taskStoreMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "task store not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.tasks.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"task_store_mode": s.taskStoreMode(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func (s *Server) taskStoreMode() string {
	if s.tasks == nil {
		return "disabled"
	}
	mode := strings.TrimSpace(s.tasks.StoreMode())
	if mode == "" {
		return "disabled"
	}
	return mode
}
