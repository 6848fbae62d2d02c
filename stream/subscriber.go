package stream

import (
	"sync"
	"sync/atomic"

	"github.com/xraph/aegis/notify"
)

// Subscriber receives events from the topics it is attached to.
//
// Flow control is credit based: each delivered event spends one credit and
// a subscriber at zero credits is skipped. A full buffer drops the event and
// refunds the credit. Delivery never blocks the publisher.
type Subscriber struct {
	id      string
	credits atomic.Int64

	// filter is fixed before the subscriber is attached.
	filter func(*Event) bool

	// mu guards ch against Close while a send is in flight.
	mu     sync.RWMutex
	ch     chan *Event
	closed bool
}

// NewSubscriber creates a subscriber with the given buffer size and
// initial credits.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{
		id: id,
		ch: make(chan *Event, bufferSize),
	}
	s.credits.Store(initialCredits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the event channel. It is closed when the subscriber is removed.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits replenishes flow-control credits.
func (s *Subscriber) AddCredits(n int64) { s.credits.Add(n) }

// Credits returns the current credit count.
func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// SetFilter restricts delivery to events matching fn. Call it before the
// subscriber is attached to a broker.
func (s *Subscriber) SetFilter(fn func(*Event) bool) { s.filter = fn }

// OnlyTypes returns a filter accepting the given notification types.
func OnlyTypes(types ...notify.Type) func(*Event) bool {
	set := make(map[notify.Type]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(e *Event) bool {
		_, ok := set[e.Type]
		return ok
	}
}

// wants reports whether evt passes the subscriber's filter.
func (s *Subscriber) wants(evt *Event) bool {
	return s.filter == nil || s.filter(evt)
}

// send delivers evt if the subscriber is open, has a credit and has buffer
// space. It reports whether the event was delivered.
func (s *Subscriber) send(evt *Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || !s.spendCredit() {
		return false
	}

	select {
	case s.ch <- evt:
		return true
	default:
		s.credits.Add(1)
		return false
	}
}

func (s *Subscriber) spendCredit() bool {
	for {
		n := s.credits.Load()
		if n <= 0 {
			return false
		}
		if s.credits.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// Close closes the event channel. It waits for in-flight sends and is safe
// to call more than once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
