package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Gotti0/kimum-trade-sub000/internal/jobs"
)

const logStreamPollInterval = 500 * time.Millisecond

// LogStreamHandler pushes a job's log lines over a websocket. New lines are
// polled from the job's ring buffer; the stream closes once the job finishes
// and the remaining lines are flushed.
type LogStreamHandler struct {
	manager *jobs.Manager
	log     zerolog.Logger
}

func NewLogStreamHandler(manager *jobs.Manager, log zerolog.Logger) *LogStreamHandler {
	return &LogStreamHandler{
		manager: manager,
		log:     log.With().Str("component", "log_stream").Logger(),
	}
}

type logStreamFrame struct {
	Type   string   `json:"type"` // "lines" or "status"
	Lines  []string `json:"lines,omitempty"`
	Status string   `json:"status,omitempty"`
}

// ServeHTTP handles GET /api/jobs/{id}/stream.
func (h *LogStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.manager.Status(id); err != nil {
		writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Str("job_id", id).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	h.log.Info().Str("job_id", id).Msg("Log stream opened")

	ctx := r.Context()
	sent := 0
	ticker := time.NewTicker(logStreamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "client disconnected")
			return
		case <-ticker.C:
		}

		info, err := h.manager.Status(id)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "job vanished")
			return
		}
		lines, err := h.manager.Logs(id)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "job vanished")
			return
		}

		// The ring drops its oldest lines once full; resync if it rotated
		// past what we already sent.
		if sent > len(lines) {
			sent = len(lines)
		}
		if len(lines) > sent {
			if err := h.writeFrame(ctx, conn, logStreamFrame{Type: "lines", Lines: lines[sent:]}); err != nil {
				return
			}
			sent = len(lines)
		}

		if info.Status != jobs.StatusRunning {
			_ = h.writeFrame(ctx, conn, logStreamFrame{Type: "status", Status: string(info.Status)})
			conn.Close(websocket.StatusNormalClosure, "job finished")
			return
		}
	}
}

func (h *LogStreamHandler) writeFrame(ctx context.Context, conn *websocket.Conn, frame logStreamFrame) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, frame); err != nil {
		h.log.Debug().Err(err).Msg("Log stream write failed")
		return err
	}
	return nil
}
