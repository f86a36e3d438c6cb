package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

var sseHeartbeat = []byte(": ping\n\n")

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := NewChannel(s.cfg.QueueSize, s.logger)
	if !s.registry.Register(ch) {
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
		return
	}
	defer s.release(ch)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return
	}
	s.logger.Debug("sse observer connected", "remote", r.RemoteAddr, "channel", ch.ID())

	ctx := r.Context()
	for {
		ev, err := ch.Dequeue(ctx, s.cfg.HeartbeatInterval)
		var frame []byte
		switch {
		case errors.Is(err, ErrNoEvent):
			frame = sseHeartbeat
		case err != nil:
			s.logger.Debug("sse observer gone", "remote", r.RemoteAddr, "reason", err)
			return
		default:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("encode event", "error", err)
				continue
			}
			frame = make([]byte, 0, len(data)+8)
			frame = append(frame, "data: "...)
			frame = append(frame, data...)
			frame = append(frame, '\n', '\n')
		}

		_ = rc.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if _, err := w.Write(frame); err != nil {
			s.logger.Debug("sse write failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		if err := rc.Flush(); err != nil {
			s.logger.Debug("sse flush failed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}
