package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/internal/domain/model"
)

// EventDependencies defines the event CRUD operations handlers need.
type EventDependencies interface {
	CreateEvent(ctx context.Context, raw calendar.RawEvent) (model.Event, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, ownerID, projectID string) ([]model.Event, error)
}

// EventsHandler handles /events requests.
type EventsHandler struct {
	deps EventDependencies
	cfg  *settings
}

type listResponse struct {
	Events []model.Event `json:"events"`
	Count  int           `json:"count"`
}

// HandleCreate handles POST /events.
func (h *EventsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_event"

	body := http.MaxBytesReader(w, r.Body, h.cfg.maxBodyBytes)
	var raw calendar.RawEvent
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, WrapKind(op, ErrPayloadTooLarge, err))
			return
		}
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	e, err := h.deps.CreateEvent(r.Context(), raw)
	if err != nil {
		h.cfg.fail(w, r, Wrap(op, err))
		return
	}
	w.Header().Set("Location", "/events/"+e.ID)
	writeJSON(w, http.StatusCreated, e)
}

// HandleList handles GET /events?owner= or ?project=.
func (h *EventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_events"

	q := r.URL.Query()
	owner, project := q.Get("owner"), q.Get("project")
	if owner == "" && project == "" {
		writeError(w, WrapKind(op, ErrBadRequest, errors.New("owner or project is required")))
		return
	}
	events, err := h.deps.ListEvents(r.Context(), owner, project)
	if err != nil {
		h.cfg.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Events: events, Count: len(events)})
}

// HandleGet handles GET /events/{id}.
func (h *EventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	e, err := h.deps.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		h.cfg.fail(w, r, Wrap("api.get_event", err))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleDelete handles DELETE /events/{id}.
func (h *EventsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteEvent(r.Context(), r.PathValue("id")); err != nil {
		h.cfg.fail(w, r, Wrap("api.delete_event", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
