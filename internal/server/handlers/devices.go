package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/3leaps/spoolwatch/internal/errors"
	"github.com/3leaps/spoolwatch/pkg/history"
	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/spool"
	"github.com/3leaps/spoolwatch/pkg/status"
)

// DeviceService is the query surface the device endpoints need.
// *query.Service implements it.
type DeviceService interface {
	ListDevices(ctx context.Context, pattern string) ([]provider.DeviceEntry, error)
	GetStatus(ctx context.Context, device string) spool.DeviceStatus
	CheckPaperFault(ctx context.Context, device string) (status.PaperStatus, error)
	ListJobs(ctx context.Context, device string) []spool.JobRecord
	GetJob(ctx context.Context, device string, jobID int) (spool.JobRecord, bool)
	GetHistory(ctx context.Context, device string, window time.Duration) []spool.JobRecord
	Pause(ctx context.Context, device string) error
	Resume(ctx context.Context, device string) error
	PurgeJobs(ctx context.Context, device string) error
	JobControl(ctx context.Context, device string, jobID int, cmd provider.JobCommand) error
}

// EventSource queries stored lifecycle events. *history.Store implements it.
type EventSource interface {
	Query(ctx context.Context, f history.Filter) ([]history.Entry, error)
}

// SessionSource lists recorded watch sessions. *history.Store implements it.
type SessionSource interface {
	Sessions(ctx context.Context, device string, limit int) ([]history.SessionRow, error)
}

// DefaultEventLimit caps /events responses without an explicit limit.
const DefaultEventLimit = 100

// DeviceHandlers serves /devices and /sessions. A nil Events or Sessions
// disables the matching endpoint.
type DeviceHandlers struct {
	Devices  DeviceService
	Events   EventSource
	Sessions SessionSource
}

type jobsResponse struct {
	Device string            `json:"device"`
	Count  int               `json:"count"`
	Jobs   []spool.JobRecord `json:"jobs"`
}

type controlResponse struct {
	Device string `json:"device"`
	JobID  int    `json:"job_id,omitempty"`
	Action string `json:"action"`
	Status string `json:"status"`
}

func (h *DeviceHandlers) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Devices.ListDevices(r.Context(), r.URL.Query().Get("match"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(entries), "devices": entries})
}

func (h *DeviceHandlers) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Devices.GetStatus(r.Context(), chi.URLParam(r, "name")))
}

func (h *DeviceHandlers) Paper(w http.ResponseWriter, r *http.Request) {
	paper, err := h.Devices.CheckPaperFault(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paper)
}

func (h *DeviceHandlers) Jobs(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "name")
	jobs := h.Devices.ListJobs(r.Context(), device)
	writeJSON(w, http.StatusOK, jobsResponse{Device: device, Count: len(jobs), Jobs: jobs})
}

func (h *DeviceHandlers) Job(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "name")
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	job, found := h.Devices.GetJob(r.Context(), device, id)
	if !found {
		respondWithError(w, r, apperrors.NewNotFound(fmt.Sprintf("job %d not found on %s", id, device)))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// History lists jobs submitted within ?window= (default 24h).
func (h *DeviceHandlers) History(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "name")
	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			respondWithError(w, r, apperrors.NewBadRequest(fmt.Sprintf("invalid window %q", raw)))
			return
		}
		window = d
	}
	jobs := h.Devices.GetHistory(r.Context(), device, window)
	writeJSON(w, http.StatusOK, jobsResponse{Device: device, Count: len(jobs), Jobs: jobs})
}

// Events lists stored lifecycle events for the device, newest first.
func (h *DeviceHandlers) Events(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailable("event history is not configured"))
		return
	}
	f, err := parseEventFilter(r)
	if err != nil {
		respondWithError(w, r, apperrors.NewBadRequest(err.Error()))
		return
	}
	entries, err := h.Events.Query(r.Context(), f)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "query events"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device": f.Device, "count": len(entries), "events": entries})
}

// SessionList serves GET /sessions?device=&limit=.
func (h *DeviceHandlers) SessionList(w http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailable("event history is not configured"))
		return
	}
	limit := DefaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondWithError(w, r, apperrors.NewBadRequest(fmt.Sprintf("invalid limit %q", raw)))
			return
		}
		limit = n
	}
	rows, err := h.Sessions.Sessions(r.Context(), r.URL.Query().Get("device"), limit)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "list sessions"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "sessions": rows})
}

// DeviceControl applies {action} (pause, resume or purge) to the device.
func (h *DeviceHandlers) DeviceControl(action provider.DeviceCommand) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := chi.URLParam(r, "name")
		var err error
		switch action {
		case provider.DevicePause:
			err = h.Devices.Pause(r.Context(), device)
		case provider.DeviceResume:
			err = h.Devices.Resume(r.Context(), device)
		case provider.DevicePurge:
			err = h.Devices.PurgeJobs(r.Context(), device)
		default:
			err = apperrors.NewBadRequest(fmt.Sprintf("unknown device action %q", action))
		}
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, controlResponse{Device: device, Action: string(action), Status: "ok"})
	}
}

func (h *DeviceHandlers) JobControl(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "name")
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	action := chi.URLParam(r, "action")
	cmd, ok := provider.ParseJobCommand(action)
	if !ok {
		respondWithError(w, r, apperrors.NewBadRequest(fmt.Sprintf("unknown job action %q", action)))
		return
	}
	if err := h.Devices.JobControl(r.Context(), device, id, cmd); err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Device: device, JobID: id, Action: string(cmd), Status: "ok"})
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		respondWithError(w, r, apperrors.NewBadRequest(fmt.Sprintf("invalid job id %q", raw)))
		return 0, false
	}
	return id, true
}

// parseEventFilter reads kind, job, session, since, until and limit. since
// and until accept RFC 3339 or a duration back from now.
func parseEventFilter(r *http.Request) (history.Filter, error) {
	q := r.URL.Query()
	f := history.Filter{
		Device:    chi.URLParam(r, "name"),
		SessionID: q.Get("session"),
		Limit:     DefaultEventLimit,
	}

	var err error
	if f.Kinds, err = history.ParseKinds(q.Get("kind")); err != nil {
		return f, err
	}
	if raw := q.Get("job"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			return f, fmt.Errorf("invalid job id %q", raw)
		}
		f.JobID = id
	}
	now := time.Now()
	if f.Since, err = history.ParseWhen(q.Get("since"), now); err != nil {
		return f, fmt.Errorf("invalid since: %w", err)
	}
	if f.Until, err = history.ParseWhen(q.Get("until"), now); err != nil {
		return f, fmt.Errorf("invalid until: %w", err)
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", raw)
		}
		f.Limit = n
	}
	return f, nil
}
