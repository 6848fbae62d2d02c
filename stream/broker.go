package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/xraph/aegis/notify"
)

// Compile-time interface check.
var _ notify.Port = (*Broker)(nil)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker fans each notification out to the subscribers of its topics.
// Delivery is best effort: a subscriber without credits or buffer space
// misses the event, and a slow subscriber never stalls the run that
// emitted it.
type Broker struct {
	index  *topicIndex
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*Subscriber

	published atomic.Int64
	dropped   atomic.Int64

	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		index:          newTopicIndex(),
		logger:         logger,
		subs:           make(map[string]*Subscriber),
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe creates a subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	return b.SubscribeFiltered(subscriberID, nil, topics...)
}

// SubscribeFiltered is like Subscribe but only delivers events accepted by
// filter. A nil filter accepts everything.
func (b *Broker) SubscribeFiltered(subscriberID string, filter func(*Event) bool, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	sub.SetFilter(filter)
	b.Attach(sub, topics...)
	return sub
}

// Attach registers a pre-built subscriber on the given topics. A
// subscriber already registered under the same ID is closed and replaced.
func (b *Broker) Attach(sub *Subscriber, topics ...string) {
	b.mu.Lock()
	prev := b.subs[sub.ID()]
	b.subs[sub.ID()] = sub
	b.mu.Unlock()

	if prev != nil && prev != sub {
		b.index.detach(prev.ID())
		prev.Close()
	}
	for _, topic := range topics {
		b.index.attach(topic, sub)
	}
}

// RemoveSubscriber detaches a subscriber from every topic and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.mu.Lock()
	sub, ok := b.subs[subscriberID]
	delete(b.subs, subscriberID)
	b.mu.Unlock()

	b.index.detach(subscriberID)
	if ok {
		sub.Close()
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[subscriberID]
	return sub, ok
}

// BrokerStats contains broker counters.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()

	return BrokerStats{
		TopicCount:      b.index.len(),
		SubscriberCount: n,
		TotalPublished:  b.published.Load(),
		TotalDropped:    b.dropped.Load(),
	}
}

// Notify implements notify.Port. It never blocks and never fails; events a
// subscriber cannot take are counted as dropped.
func (b *Broker) Notify(_ context.Context, msg notify.Message) error {
	evt := NewEvent(msg)

	var delivered, dropped int64
	for _, sub := range b.index.targets(topicsFor(evt)) {
		if !sub.wants(evt) {
			continue
		}
		if sub.send(evt) {
			delivered++
		} else {
			dropped++
		}
	}

	b.published.Add(delivered)
	if dropped > 0 {
		b.dropped.Add(dropped)
		b.logger.Debug("stream events dropped",
			slog.String("topic", evt.Topic),
			slog.String("type", string(evt.Type)),
			slog.Int64("dropped", dropped),
		)
	}
	return nil
}

// Close removes and closes every subscriber.
func (b *Broker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscriber)
	b.mu.Unlock()

	for subID, sub := range subs {
		b.index.detach(subID)
		sub.Close()
	}
	b.logger.Info("stream broker shut down")
}
