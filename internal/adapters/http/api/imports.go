package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/calboard/internal/adapters/mq/worker"
)

// ImportDependencies defines the ICS import and export operations.
type ImportDependencies interface {
	// SubmitImport queues body for import. A payload identical to one
	// already submitted for the same owner returns the earlier job ID and
	// duplicate=true.
	SubmitImport(ctx context.Context, ownerID, projectID, projectName string, body []byte) (jobID string, duplicate bool, err error)
	ImportStatus(ctx context.Context, id string) (worker.Status, bool)
	ExportCalendar(ctx context.Context, ownerID string, stamp time.Time) (string, error)
}

// ImportsHandler handles ICS import and export requests.
type ImportsHandler struct {
	deps ImportDependencies
	cfg  *settings
}

type ackResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// HandleSubmit handles POST /imports?owner=&project=&project_name=.
func (h *ImportsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_import"

	owner, err := requiredParam(r, "owner")
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, WrapKind(op, ErrPayloadTooLarge, err))
			return
		}
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		writeError(w, WrapKind(op, ErrBadRequest, errors.New("empty calendar body")))
		return
	}

	q := r.URL.Query()
	id, duplicate, err := h.deps.SubmitImport(r.Context(), owner, q.Get("project"), q.Get("project_name"), body)
	if err != nil {
		h.cfg.fail(w, r, Wrap(op, err))
		return
	}

	w.Header().Set("Location", "/imports/"+id)
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{ID: id, Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{ID: id, Status: string(worker.StateQueued)})
}

// HandleStatus handles GET /imports/{id}.
func (h *ImportsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := h.deps.ImportStatus(r.Context(), id)
	if !ok {
		writeError(w, WrapKind("api.import_status", ErrNotFound, fmt.Errorf("import %s not found", id)))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleExport handles GET /calendar.ics?owner=.
func (h *ImportsHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.export"

	owner, err := requiredParam(r, "owner")
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	doc, err := h.deps.ExportCalendar(r.Context(), owner, h.cfg.now())
	if err != nil {
		h.cfg.fail(w, r, Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", owner+".ics"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}
