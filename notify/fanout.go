package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Fanout delivers each message to every registered port in registration
// order. A failing port does not stop delivery to the rest; failures are
// logged and returned joined.
type Fanout struct {
	mu     sync.RWMutex
	ports  []namedPort
	logger *slog.Logger
}

type namedPort struct {
	name string
	port Port
}

// NewFanout creates a Fanout over ports.
func NewFanout(logger *slog.Logger, ports ...Port) *Fanout {
	f := &Fanout{logger: logger}
	for i, p := range ports {
		f.Add(fmt.Sprintf("port-%d", i), p)
	}
	return f
}

// Add registers p under name.
func (f *Fanout) Add(name string, p Port) {
	if p == nil {
		return
	}
	f.mu.Lock()
	f.ports = append(f.ports, namedPort{name: name, port: p})
	f.mu.Unlock()
}

// Len returns the number of registered ports.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ports)
}

// Notify implements Port.
func (f *Fanout) Notify(ctx context.Context, msg Message) error {
	f.mu.RLock()
	ports := make([]namedPort, len(f.ports))
	copy(ports, f.ports)
	f.mu.RUnlock()

	var errs []error
	for _, np := range ports {
		if err := np.port.Notify(ctx, msg); err != nil {
			f.logger.Warn("notification port failed",
				slog.String("port", np.name),
				slog.String("client_id", msg.ClientID.String()),
				slog.String("type", string(msg.Type)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", np.name, err))
		}
	}
	return errors.Join(errs...)
}
