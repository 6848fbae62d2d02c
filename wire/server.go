package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/notify"
	"github.com/xraph/aegis/stream"
)

// Server serves WebSocket and SSE endpoints backed by a stream broker.
type Server struct {
	broker       *stream.Broker
	defaultCodec Codec
	conns        *ConnectionManager
	logger       *slog.Logger
	writeTimeout time.Duration
	heartbeat    time.Duration
}

// NewServer creates a server publishing events from broker.
func NewServer(broker *stream.Broker, opts ...Option) *Server {
	s := &Server{
		broker:       broker,
		defaultCodec: JSONCodec{},
		conns:        NewConnectionManager(),
		logger:       slog.Default(),
		writeTimeout: 10 * time.Second,
		heartbeat:    15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Broker returns the underlying stream broker.
func (s *Server) Broker() *stream.Broker { return s.broker }

// Connections returns the connection manager.
func (s *Server) Connections() *ConnectionManager { return s.conns }

// RegisterRoutes mounts the endpoints on mux:
//
//	GET /ws/{client_id}   WebSocket, ?format=json|msgpack
//	GET /sse/{client_id}  server-sent events
//
// Both accept ?types=approval_required,error to receive only those
// notification types.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/{client_id}", s.handleWebSocket)
	mux.HandleFunc("GET /sse/{client_id}", s.handleSSE)
}

// Handler returns a mux serving only the wire endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Close drops every open socket.
func (s *Server) Close() {
	s.conns.CloseAll()
}

// typeFilter parses the comma-separated ?types= query. An empty query
// accepts every type.
func typeFilter(r *http.Request) (func(*stream.Event) bool, error) {
	raw := r.URL.Query().Get("types")
	if raw == "" {
		return nil, nil
	}
	var types []notify.Type
	for _, part := range strings.Split(raw, ",") {
		t := notify.Type(strings.TrimSpace(part))
		if !t.Valid() {
			return nil, fmt.Errorf("unknown notification type %q", t)
		}
		types = append(types, t)
	}
	return stream.OnlyTypes(types...), nil
}

func (s *Server) clientID(w http.ResponseWriter, r *http.Request) (id.ClientID, bool) {
	clientID, err := id.ParseClientID(r.PathValue("client_id"))
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return id.Nil, false
	}
	return clientID, true
}

// ──────────────────────────────────────────────────
// WebSocket
// ──────────────────────────────────────────────────

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID, ok := s.clientID(w, r)
	if !ok {
		return
	}

	filter, err := typeFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	codec := s.defaultCodec
	if format := r.URL.Query().Get("format"); format != "" {
		codec = GetCodec(format)
	}

	// The subscription exists before the handshake completes, so a peer
	// sees every event published after its dial returns.
	cid := id.NewConnectionID()
	connID := cid.String()
	sub := s.broker.SubscribeFiltered(connID, filter, stream.ClientTopic(clientID.String()))

	netConn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.broker.RemoveSubscriber(connID)
		s.logger.Warn("wire: websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn := NewConnection(cid, netConn, clientID, codec, s.writeTimeout)
	s.conns.Add(conn)

	s.logger.Info("wire: websocket connected",
		slog.String("conn_id", connID),
		slog.String("client_id", clientID.String()),
		slog.String("codec", codec.Name()),
	)

	done := make(chan struct{})
	defer func() {
		s.broker.RemoveSubscriber(connID)
		<-done
		s.conns.Remove(connID)
		_ = conn.Close() //nolint:errcheck // already disconnected
		s.logger.Info("wire: websocket disconnected", slog.String("conn_id", connID))
	}()

	go func() {
		defer close(done)
		s.forwardEvents(conn, sub)
	}()

	for {
		data, op, readErr := wsutil.ReadClientData(netConn)
		if readErr != nil {
			return
		}

		reply := s.handleClientData(conn, data, op)
		if reply == nil {
			continue
		}
		if writeErr := conn.WriteFrame(reply); writeErr != nil {
			s.logger.Warn("wire: write reply failed",
				slog.String("conn_id", connID),
				slog.String("error", writeErr.Error()),
			)
			return
		}
	}
}

// handleClientData interprets one client message. Frames carrying a ping
// or credits are handled as control frames; any other text is echoed.
func (s *Server) handleClientData(conn *Connection, data []byte, op ws.OpCode) *Frame {
	frame, decErr := conn.Codec.Decode(data)
	if decErr != nil || frame.Type == "" {
		if op == ws.OpText {
			return NewEchoFrame(string(data))
		}
		return NewErrorFrame("", ErrCodeBadRequest, "invalid frame")
	}

	switch {
	case frame.Type == FramePing:
		return NewPongFrame(frame)
	case frame.Type == FrameCredits:
		if frame.Credits <= 0 {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "credits must be positive")
		}
		if sub, ok := s.broker.GetSubscriber(conn.ID.String()); ok {
			sub.AddCredits(int64(frame.Credits))
		}
		return nil
	case op == ws.OpText:
		return NewEchoFrame(string(data))
	default:
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, fmt.Sprintf("unexpected frame type %q", frame.Type))
	}
}

// forwardEvents writes broker events to the socket until the subscriber
// is closed or a write fails.
func (s *Server) forwardEvents(conn *Connection, sub *stream.Subscriber) {
	for evt := range sub.C() {
		frame, err := NewEventFrame(evt.Topic, evt.Message)
		if err != nil {
			s.logger.Warn("wire: encode event failed", slog.String("error", err.Error()))
			continue
		}
		if writeErr := conn.WriteFrame(frame); writeErr != nil {
			_ = conn.Close() //nolint:errcheck // unblocks the read loop
			for range sub.C() {
			}
			return
		}
	}
}

// ──────────────────────────────────────────────────
// Server-sent events
// ──────────────────────────────────────────────────

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	clientID, ok := s.clientID(w, r)
	if !ok {
		return
	}

	filter, err := typeFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	connID := id.NewConnectionID().String()
	sub := s.broker.SubscribeFiltered(connID, filter, stream.ClientTopic(clientID.String()))
	defer s.broker.RemoveSubscriber(connID)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	var tick <-chan time.Time
	if s.heartbeat > 0 {
		t := time.NewTicker(s.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case evt, open := <-sub.C():
			if !open {
				return
			}
			if err := writeSSE(w, evt); err != nil {
				s.logger.Debug("wire: sse write failed", slog.String("error", err.Error()))
				return
			}
			flusher.Flush()
		case <-tick:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w io.Writer, evt *stream.Event) error {
	data, err := json.Marshal(evt.Message)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.Message.ID, evt.Type, data)
	return err
}
