package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ch := NewChannel(s.cfg.QueueSize, s.logger)
	if !s.registry.Register(ch) {
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
		return
	}
	defer s.release(ch)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	s.logger.Debug("ws observer connected", "remote", r.RemoteAddr, "channel", ch.ID())

	// Hijacked connections are not closed by http.Server.Close, so the loop
	// hangs off the server's base context instead of the request's.
	ctx, cancel := context.WithCancel(s.base)
	defer cancel()

	// Observers never send anything meaningful; reading only surfaces the
	// close frame or a dead peer.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		ev, err := ch.Dequeue(ctx, s.cfg.HeartbeatInterval)
		deadline := time.Now().Add(s.cfg.WriteTimeout)
		switch {
		case errors.Is(err, ErrNoEvent):
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case err != nil:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
			return
		default:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("encode event", "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(deadline)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("ws write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

// checkOrigin admits same-host and loopback origins. Requests without an
// Origin header (non-browser clients) are allowed.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == r.Host {
		return true
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasSuffix(parsed.Hostname(), ".localhost")
}
