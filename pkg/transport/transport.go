// Package transport serves one WebSocket endpoint that attaches each
// connecting client as a bus subscriber and forwards every published
// transcript event as a JSON text frame, plus a /health route.
package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/quietloop/scribecore/internal/logging"
	"github.com/quietloop/scribecore/pkg/bus"
)

// wireEvent is the JSON shape clients receive.
type wireEvent struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	Language  string   `json:"language"`
	Timestamp uint64   `json:"timestamp"`
	IsFinal   bool     `json:"is_final"`
	RTF       *float64 `json:"rtf,omitempty"`
}

func toWire(e bus.Event) wireEvent {
	return wireEvent{
		Type:      string(e.Type),
		Text:      e.Text,
		Language:  e.Language,
		Timestamp: e.TimestampMs,
		IsFinal:   e.IsFinal,
		RTF:       e.RTF,
	}
}

// Server serves the WebSocket fan-out endpoint and the health check route.
type Server struct {
	bus    *bus.Bus
	logger logging.Logger
}

// NewServer builds a Server broadcasting b's events to every connection.
func NewServer(b *bus.Bus, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Server{bus: b, logger: logger}
}

// Handler returns the HTTP mux: the root path upgrades to a WebSocket, and
// /health returns the literal bytes "ok".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleWS)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("transport: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	reader := s.bus.Subscribe()
	defer s.bus.Unsubscribe(reader)

	// coder/websocket answers ping frames and detects client disconnects
	// only while something is actively reading; this loop both drains and
	// ignores any client-initiated data frames and notices a closed
	// connection.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		event, lagged, err := reader.Recv(ctx)
		if err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		if lagged > 0 {
			s.logger.Warn("transport: subscriber lagged, events skipped", "count", lagged)
			continue
		}

		payload, err := json.Marshal(toWire(event))
		if err != nil {
			s.logger.Error("transport: marshal event failed", "err", err)
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			return
		}
	}
}
