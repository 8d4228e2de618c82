// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/calboard/internal/adapters/mq/queue"
	"github.com/okian/calboard/internal/adapters/repository"
	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/pkg/logger"
)

const defaultMaxBodyBytes = 4 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	CalendarDependencies
	ImportDependencies
	StatsProvider
}

// settings are shared by every handler of a Server.
type settings struct {
	now          func() time.Time
	loc          *time.Location
	weekStart    time.Weekday
	maxBodyBytes int64
	log          logger.Logger
}

// Option configures a Server.
type Option func(*settings)

// WithClock sets the clock used when a request carries no "now".
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone for dates and zone-less times in requests.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithWeekStart sets the first day of month and week views.
func WithWeekStart(day time.Weekday) Option {
	return func(s *settings) {
		s.weekStart = day
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// Server wires HTTP routes for the calendar API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	eventsHandler   *EventsHandler
	calendarHandler *CalendarHandler
	importsHandler  *ImportsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := &settings{
		now:          time.Now,
		loc:          time.UTC,
		weekStart:    time.Sunday,
		maxBodyBytes: defaultMaxBodyBytes,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		eventsHandler:   &EventsHandler{deps: deps, cfg: cfg},
		calendarHandler: &CalendarHandler{deps: deps, cfg: cfg},
		importsHandler:  &ImportsHandler{deps: deps, cfg: cfg},
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /events", MetricsMiddleware(s.eventsHandler.HandleCreate, "events"))
	mux.HandleFunc("GET /events", MetricsMiddleware(s.eventsHandler.HandleList, "events"))
	mux.HandleFunc("GET /events/{id}", MetricsMiddleware(s.eventsHandler.HandleGet, "event"))
	mux.HandleFunc("DELETE /events/{id}", MetricsMiddleware(s.eventsHandler.HandleDelete, "event"))

	mux.HandleFunc("GET /calendar", MetricsMiddleware(s.calendarHandler.HandleView, "calendar"))
	mux.HandleFunc("GET /calendar/next", MetricsMiddleware(s.calendarHandler.HandleNext, "calendar_next"))
	mux.HandleFunc("GET /calendar/upcoming", MetricsMiddleware(s.calendarHandler.HandleUpcoming, "calendar_upcoming"))
	mux.HandleFunc("GET /calendar/layout/{id}", MetricsMiddleware(s.calendarHandler.HandleLayout, "calendar_layout"))
	mux.HandleFunc("GET /projects", MetricsMiddleware(s.calendarHandler.HandleProjects, "projects"))

	mux.HandleFunc("POST /imports", MetricsMiddleware(s.importsHandler.HandleSubmit, "imports"))
	mux.HandleFunc("GET /imports/{id}", MetricsMiddleware(s.importsHandler.HandleStatus, "import"))
	mux.HandleFunc("GET /calendar.ics", MetricsMiddleware(s.importsHandler.HandleExport, "export"))
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

// writeError maps err to a status and error code and writes it.
func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := http.StatusText(status)
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		msg = apiErr.message()
	case err != nil:
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, calendar.ErrValidation),
		errors.Is(err, calendar.ErrUnknownViewMode),
		errors.Is(err, repository.ErrMissingOwner),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, calendar.ErrUnsupportedSpan):
		return http.StatusUnprocessableEntity, "unsupported_span"
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, queue.ErrFull), errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, queue.ErrClosed), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail writes err and logs it when it is the server's fault.
func (cfg *settings) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := statusFor(err)
	if status >= http.StatusInternalServerError {
		cfg.log.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err))
	}
	writeError(w, err)
}
