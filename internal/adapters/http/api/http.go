// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/evalboard/internal/app"
	"github.com/okian/evalboard/internal/domain/evalerr"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/types"
	"github.com/okian/evalboard/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmissionDependencies
	LeaderboardDependencies
	HistoryDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Record mirrors one row of the history.
type Record = model.ResultRecord

// Defaults for Options.
const (
	DefaultMaxUploadBytes      = 10 << 20
	DefaultMaxLeaderboardLimit = 100
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxUploadBytes caps the size of a submission request body.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithMaxLeaderboardLimit caps the limit accepted by GET /leaderboard.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	maxUploadBytes int64
	maxLimit       int
	log            logger.Logger

	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	submissionsHandler *SubmissionsHandler
	leaderboardHandler *LeaderboardHandler
	historyHandler     *HistoryHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		maxUploadBytes: DefaultMaxUploadBytes,
		maxLimit:       DefaultMaxLeaderboardLimit,
		log:            logger.GetOrNop().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.submissionsHandler = NewSubmissionsHandler(deps, s.maxUploadBytes, s.log)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit)
	s.historyHandler = NewHistoryHandler(deps)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/submissions", MetricsMiddleware(s.submissionsHandler.HandlePostSubmission, "submissions"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/history", MetricsMiddleware(s.historyHandler.HandleGetHistory, "history"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps service errors to a status and a response code. Input
// errors are the submitter's to fix; store errors mean the service cannot
// evaluate right now.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, evalerr.ErrSchema),
		errors.Is(err, evalerr.ErrValidation),
		errors.Is(err, evalerr.ErrNoOverlap):
		return http.StatusUnprocessableEntity, evalerr.Code(err)
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, evalerr.ErrNotFound),
		errors.Is(err, evalerr.ErrTransient),
		errors.Is(err, evalerr.ErrAuth),
		errors.Is(err, evalerr.ErrRetriesExhausted):
		return http.StatusServiceUnavailable, evalerr.Code(err)
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
