package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/infra/logging"
)

const eventBuffer = 64

// handleEvents streams session events. The stream opens with a snapshot of
// the session; clients drop replayed messages by seq. A subscriber that
// falls eventBuffer events behind is disconnected and must reconnect.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	events := make(chan model.SessionEvent, eventBuffer)
	overflow := make(chan struct{})
	var overflowed bool
	unsubscribe, err := s.chat.Subscribe(ctx, id, func(ev model.SessionEvent) {
		if overflowed {
			return
		}
		select {
		case events <- ev:
		default:
			overflowed = true
			close(overflow)
		}
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer unsubscribe()

	session, err := s.chat.GetSession(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", sessionResponse{ChatSession: session, Composing: s.chat.IsComposing(id)}); err != nil {
		return
	}
	flusher.Flush()

	l := logging.With(logging.WithSessID(ctx, id), s.log)
	ping := time.NewTicker(s.heartbeat)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.streamsDone:
			l.Debug().Msg("server shutting down, closing stream")
			return
		case <-overflow:
			l.Warn().Msg("event subscriber too slow, closing stream")
			return
		case ev := <-events:
			if err := writeEvent(w, string(ev.Type), ev); err != nil {
				return
			}
			flusher.Flush()
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
