package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/internal/domain/model"
)

const (
	defaultUpcomingLimit = 10
	maxUpcomingLimit     = 100
)

// CalendarDependencies defines the read-model operations behind the
// calendar endpoints.
type CalendarDependencies interface {
	View(ctx context.Context, ownerID, projectID string, req calendar.ViewRequest) (calendar.View, error)
	NextEvent(ctx context.Context, ownerID string, now time.Time) (model.Event, bool, error)
	UpcomingEvents(ctx context.Context, ownerID string, now time.Time, limit int) ([]model.Event, error)
	EventLayout(ctx context.Context, id string, column model.Date) (calendar.Rect, bool, error)
	Projects(ctx context.Context, ownerID string) ([]calendar.ProjectSummary, error)
}

// CalendarHandler serves rendered calendar views.
type CalendarHandler struct {
	deps CalendarDependencies
	cfg  *settings
}

type layoutResponse struct {
	EventID       string        `json:"event_id"`
	Column        model.Date    `json:"column"`
	Visible       bool          `json:"visible"`
	PixelsPerHour float64       `json:"pixels_per_hour,omitempty"`
	Rect          calendar.Rect `json:"rect"`
}

type projectsResponse struct {
	Projects []calendar.ProjectSummary `json:"projects"`
}

// HandleView handles GET /calendar?owner=&project=&date=&view=&now=.
func (h *CalendarHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	const op = "api.calendar_view"

	q := r.URL.Query()
	owner, project := q.Get("owner"), q.Get("project")
	if owner == "" && project == "" {
		writeError(w, WrapKind(op, ErrBadRequest, errors.New("owner or project is required")))
		return
	}
	now, err := h.cfg.nowParam(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	ref, err := dateParam(r, "date", model.DateOf(now))
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	mode, err := viewParam(r)
	if err != nil {
		h.cfg.fail(w, r, Wrap(op, err))
		return
	}

	v, err := h.deps.View(r.Context(), owner, project, calendar.ViewRequest{
		Reference: ref,
		Mode:      mode,
		Now:       now,
		WeekStart: h.cfg.weekStart,
	})
	if err != nil {
		h.cfg.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleNext handles GET /calendar/next?owner=&now=. It answers 204 when
// nothing else starts today.
func (h *CalendarHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	const op = "api.next_event"

	owner, err := requiredParam(r, "owner")
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	now, err := h.cfg.nowParam(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	e, ok, err := h.deps.NextEvent(r.Context(), owner, now)
	if err != nil {
		h.cfg.fail(w, r, Wrap(op, err))
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleUpcoming handles GET /calendar/upcoming?owner=&now=&limit=.
func (h *CalendarHandler) HandleUpcoming(w http.ResponseWriter, r *http.Request) {
	const op = "api.upcoming_events"

	owner, err := requiredParam(r, "owner")
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	now, err := h.cfg.nowParam(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	limit, err := limitParam(r, defaultUpcomingLimit, maxUpcomingLimit)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	events, err := h.deps.UpcomingEvents(r.Context(), owner, now, limit)
	if err != nil {
		h.cfg.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Events: events, Count: len(events)})
}

// HandleLayout handles GET /calendar/layout/{id}?column=. Without a column
// the event's own date is used.
func (h *CalendarHandler) HandleLayout(w http.ResponseWriter, r *http.Request) {
	const op = "api.event_layout"

	id := r.PathValue("id")
	column, err := dateParam(r, "column", model.Date{})
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	rect, visible, err := h.deps.EventLayout(r.Context(), id, column)
	if err != nil {
		h.cfg.fail(w, r, Wrap(op, err))
		return
	}
	resp := layoutResponse{EventID: id, Column: column, Visible: visible, Rect: rect}
	if visible {
		resp.PixelsPerHour = pixelsPerHour(h.deps)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleProjects handles GET /projects?owner=.
func (h *CalendarHandler) HandleProjects(w http.ResponseWriter, r *http.Request) {
	const op = "api.projects"

	owner, err := requiredParam(r, "owner")
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	summaries, err := h.deps.Projects(r.Context(), owner)
	if err != nil {
		h.cfg.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, projectsResponse{Projects: summaries})
}

// pixelsPerHour reports the layout scale when deps expose it.
func pixelsPerHour(deps CalendarDependencies) float64 {
	if s, ok := deps.(interface{ PixelsPerHour() float64 }); ok {
		return s.PixelsPerHour()
	}
	return calendar.PixelsPerHour
}
