package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"quizroom/internal/broadcast"
	"quizroom/internal/gateway"
	"quizroom/internal/scheduler"
	"quizroom/pkg/interfaces"
	"quizroom/pkg/types"
)

// UserDirectory resolves the caller named by X-User-ID
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*types.User, error)
}

// HealthChecker reports database connectivity
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsProvider reports live connection statistics
type StatsProvider interface {
	GetStats() map[string]int
}

// SchedulerRunner triggers one scheduler pass on demand
type SchedulerRunner interface {
	RunOnce(ctx context.Context) (*scheduler.RunResult, error)
}

// Dependencies are the components the API fronts. WebSocket is optional.
type Dependencies struct {
	Gateway    *gateway.Gateway
	Dispatcher *broadcast.Dispatcher
	Scheduler  SchedulerRunner
	Users      UserDirectory
	Health     HealthChecker
	Stats      StatsProvider
	WebSocket  http.Handler
}

// Config carries the HTTP-facing settings of the API
type Config struct {
	// BaseURL is the allowed CORS origin; empty allows any origin
	BaseURL string
	// CronSecret authorizes system calls to the scheduler endpoint
	CronSecret string
}

// Server is the HTTP layer: it resolves the caller, decodes requests and
// maps component errors to status codes. No business rules live here.
type Server struct {
	deps      Dependencies
	config    Config
	router    *mux.Router
	handler   http.Handler
	startedAt time.Time
}

type contextKey string

const callerKey contextKey = "caller"

// NewServer creates the API server and registers its routes
func NewServer(deps Dependencies, config Config) *Server {
	s := &Server{
		deps:      deps,
		config:    config,
		router:    mux.NewRouter(),
		startedAt: time.Now(),
	}
	s.setupRoutes()
	s.handler = s.corsMiddleware(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
	if s.deps.WebSocket != nil {
		s.router.Handle("/ws", s.deps.WebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.identityMiddleware)

	api.HandleFunc("/rooms/{id}", s.getRoom).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}", s.updateRoom).Methods(http.MethodPut)
	api.HandleFunc("/rooms/{id}", s.deleteRoom).Methods(http.MethodDelete)
	api.HandleFunc("/rooms/{id}/messages", s.listMessages).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}/messages", s.sendMessage).Methods(http.MethodPost)

	api.HandleFunc("/messages/{id}", s.editMessage).Methods(http.MethodPut)
	api.HandleFunc("/messages/{id}", s.deleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/messages/{id}/flag", s.flagMessage).Methods(http.MethodPost)

	api.HandleFunc("/monitor", s.monitorContent).Methods(http.MethodPost)
	api.HandleFunc("/monitor", s.listFindings).Methods(http.MethodGet)
	api.HandleFunc("/monitor/report", s.integrityReport).Methods(http.MethodGet)
	api.HandleFunc("/monitor/{id}/resolve", s.resolveFinding).Methods(http.MethodPut)

	api.HandleFunc("/broadcasts/quiz-status", s.broadcastQuizStatus).Methods(http.MethodPost)
	api.HandleFunc("/broadcasts/study-progress", s.broadcastStudyProgress).Methods(http.MethodPost)
	api.HandleFunc("/broadcasts/instructor-presence", s.broadcastInstructorPresence).Methods(http.MethodPost)
	api.HandleFunc("/broadcasts/study-sessions/{id}", s.broadcastStudySession).Methods(http.MethodPost)

	api.HandleFunc("/scheduler/run", s.runScheduler).Methods(http.MethodPost)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

// healthCheck answers 503 when the database is unreachable
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.deps.Health.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	connections := map[string]int{}
	if s.deps.Stats != nil {
		connections = s.deps.Stats.GetStats()
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: connections,
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		},
	})
}

// identityMiddleware resolves X-User-ID against the users table. A request
// without the header passes through anonymous; handlers decide whether that
// is enough.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := s.deps.Users.GetUser(r.Context(), userID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				s.sendError(w, fmt.Errorf("%w: %s", ErrUnknownUser, userID))
				return
			}
			s.sendError(w, err)
			return
		}

		caller := gateway.Caller{UserID: user.ID, Name: user.Name, Role: user.Role}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, caller)))
	})
}

// callerFrom returns the resolved caller, if any
func callerFrom(r *http.Request) (gateway.Caller, bool) {
	caller, ok := r.Context().Value(callerKey).(gateway.Caller)
	return caller, ok
}

// requireCaller writes 401 and returns false for anonymous requests
func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request) (gateway.Caller, bool) {
	caller, ok := callerFrom(r)
	if !ok {
		s.sendError(w, ErrUnauthenticated)
		return gateway.Caller{}, false
	}
	return caller, true
}

// hasCronSecret reports whether the request carries the configured bearer secret
func (s *Server) hasCronSecret(r *http.Request) bool {
	if s.config.CronSecret == "" {
		return false
	}
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.config.CronSecret)) == 1
}

// corsMiddleware allows the configured base URL, or any origin when unset,
// and answers preflight requests directly
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origin := strings.TrimRight(s.config.BaseURL, "/")
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if origin != "*" {
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}
