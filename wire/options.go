package wire

import (
	"log/slog"
	"time"
)

// Option configures a Server.
type Option func(*Server)

// WithCodec sets the codec used when a socket does not ask for one.
func WithCodec(codec Codec) Option {
	return func(s *Server) { s.defaultCodec = codec }
}

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithWriteTimeout bounds each socket write. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// WithHeartbeat sets the interval of SSE keep-alive comments. Zero
// disables them.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}
