package notify

import (
	"context"
	"sync"

	"github.com/xraph/aegis/id"
)

// Recorder is a Port that keeps every message in memory. It is intended
// for tests and local debugging.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
	ch   chan struct{}
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{ch: make(chan struct{}, 1)}
}

// FailWith makes subsequent Notify calls record the message and return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Notify implements Port.
func (r *Recorder) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	err := r.err
	r.mu.Unlock()

	select {
	case r.ch <- struct{}{}:
	default:
	}
	return err
}

// Messages returns a copy of all recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// For returns the recorded messages addressed to clientID.
func (r *Recorder) For(clientID id.ClientID) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.ClientID.String() == clientID.String() {
			out = append(out, m)
		}
	}
	return out
}

// Types returns the Type of every recorded message in order.
func (r *Recorder) Types() []Type {
	msgs := r.Messages()
	out := make([]Type, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

// Wait blocks until a message satisfying pred has been recorded or ctx
// is done. It reports whether pred was satisfied.
func (r *Recorder) Wait(ctx context.Context, pred func([]Message) bool) bool {
	for {
		if pred(r.Messages()) {
			return true
		}
		select {
		case <-r.ch:
		case <-ctx.Done():
			return pred(r.Messages())
		}
	}
}
