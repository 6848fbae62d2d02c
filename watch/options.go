package watch

import (
	"log/slog"

	"github.com/xraph/aegis/notify"
	"github.com/xraph/aegis/pacing"
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithFormat sets the wire format: "json" (default) or "msgpack".
func WithFormat(format string) Option {
	return func(w *Watcher) { w.format = format }
}

// WithTypes asks the server for only these notification types.
func WithTypes(types ...notify.Type) Option {
	return func(w *Watcher) { w.types = types }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// WithReconnect enables reconnection after a dropped socket. Attempts are
// spaced by strategy; maxRetries <= 0 retries until Close.
func WithReconnect(strategy pacing.Strategy, maxRetries int) Option {
	return func(w *Watcher) {
		w.strategy = strategy
		w.maxRetries = maxRetries
	}
}

// WithBuffer sets the capacity of the Messages channel.
func WithBuffer(n int) Option {
	return func(w *Watcher) { w.buffer = n }
}

// WithCreditBatch sets how many events are consumed before the watcher
// grants the server that many credits again. Zero disables replenishment.
func WithCreditBatch(n int) Option {
	return func(w *Watcher) { w.creditBatch = n }
}
