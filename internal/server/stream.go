package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xtxerr/gemrate/internal/dataset"
	"github.com/xtxerr/gemrate/internal/logging"
)

// StreamMessage is pushed to websocket clients on connect and after every
// refresh cycle.
type StreamMessage struct {
	Kind  string        `json:"kind"`
	Cycle int64         `json:"cycle"`
	Chart dataset.Chart `json:"chart,omitempty"`
	Error string        `json:"error,omitempty"`
}

// handleStream serves GET /ws/{kind}.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ip := extractIP(r.RemoteAddr)
	if !s.limiter.Allow(ip) {
		logging.WithContext(r.Context()).Warn("stream connect rate limited",
			"ip", ip, "count", s.limiter.Count(ip))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:  "too many stream connects",
			Status: http.StatusTooManyRequests,
		})
		return
	}

	d, err := s.reg.Lookup(r.PathValue("kind"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.mu.Lock()
	select {
	case <-s.shutdown:
		s.mu.Unlock()
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:  "server shutting down",
			Status: http.StatusServiceUnavailable,
		})
		return
	default:
	}
	s.streams.Add(1)
	s.mu.Unlock()
	defer s.streams.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied.
		logging.WithContext(r.Context()).Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	l := logging.WithContext(logging.ContextWithKind(r.Context(), d.Kind().String()))
	l.Info("stream opened")
	defer l.Info("stream closed")

	events, unsubscribe := s.reg.Subscribe()
	defer unsubscribe()

	pongWait := s.cfg.StreamPongWait
	writeWait := s.cfg.StreamWriteWait

	// Clients only send control frames; reading keeps pongs flowing and
	// notices when the peer goes away.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(cycle int64) error {
		msg := StreamMessage{Kind: d.Kind().String(), Cycle: cycle}
		chart, err := s.chart(r.Context(), d)
		if err != nil {
			msg.Error = err.Error()
		} else {
			msg.Chart = chart
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	if err := send(s.reg.Cycles()); err != nil {
		return
	}

	ping := time.NewTicker(pongWait * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case <-s.shutdown:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case <-readDone:
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := send(ev.Cycle); err != nil {
				l.Debug("stream write failed", "error", err)
				return
			}

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
