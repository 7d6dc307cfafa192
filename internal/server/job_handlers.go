package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/jobs"
)

// JobHandlers starts, stops, and inspects background jobs. The launchable
// kinds are fixed at wiring time; an unknown kind is a client error.
type JobHandlers struct {
	manager *jobs.Manager
	funcs   map[jobs.Kind]jobs.Fn
	log     zerolog.Logger
}

func NewJobHandlers(manager *jobs.Manager, funcs map[jobs.Kind]jobs.Fn, log zerolog.Logger) *JobHandlers {
	return &JobHandlers{
		manager: manager,
		funcs:   funcs,
		log:     log.With().Str("component", "job_handlers").Logger(),
	}
}

// HandleList responds to GET /api/jobs with every known job, newest first.
func (h *JobHandlers) HandleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.manager.List()})
}

// HandleStart responds to POST /api/jobs/{kind}/start.
func (h *JobHandlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	kind := jobs.Kind(chi.URLParam(r, "kind"))
	fn, ok := h.funcs[kind]
	if !ok {
		writeError(w, &domain.ConfigError{
			Field:  "job_kind",
			Reason: fmt.Sprintf("unknown job kind %q", kind),
		})
		return
	}

	id, err := h.manager.Start(kind, fn)
	if err != nil {
		writeError(w, err)
		return
	}

	h.log.Info().Str("kind", string(kind)).Str("job_id", id).Msg("Job started via API")
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "kind": string(kind)})
}

// HandleStatus responds to GET /api/jobs/{id}.
func (h *JobHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	info, err := h.manager.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleStop responds to POST /api/jobs/{id}/stop.
func (h *JobHandlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Stop(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "stopping"})
}

// HandleLogs responds to GET /api/jobs/{id}/logs with the buffered log lines.
func (h *JobHandlers) HandleLogs(w http.ResponseWriter, r *http.Request) {
	lines, err := h.manager.Logs(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}
