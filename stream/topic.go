package stream

import (
	"sync"

	"github.com/xraph/aegis/notify"
)

// Topics an event is published to:
//
//	client:<clientID>  every notification for one client
//	clients            run-level notifications for all clients
//	                   (approval required, completion, errors)
//	firehose           everything
const (
	TopicClients  = "clients"
	TopicFirehose = "firehose"
)

// ClientTopic returns the topic name for a specific client.
func ClientTopic(clientID string) string { return "client:" + clientID }

// topicsFor returns every topic evt is published to.
func topicsFor(evt *Event) []string {
	topics := []string{TopicFirehose, evt.Topic}
	if evt.Type != notify.TypeStepUpdate {
		topics = append(topics, TopicClients)
	}
	return topics
}

// topicIndex maps topic names to the subscribers attached to them.
type topicIndex struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber
}

func newTopicIndex() *topicIndex {
	return &topicIndex{topics: make(map[string]map[string]*Subscriber)}
}

func (ti *topicIndex) attach(topic string, sub *Subscriber) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	subs := ti.topics[topic]
	if subs == nil {
		subs = make(map[string]*Subscriber)
		ti.topics[topic] = subs
	}
	subs[sub.ID()] = sub
}

// detach removes subscriberID from every topic and drops empty topics.
func (ti *topicIndex) detach(subscriberID string) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	for topic, subs := range ti.topics {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(ti.topics, topic)
		}
	}
}

// targets returns the distinct subscribers attached to any of topics.
func (ti *topicIndex) targets(topics []string) []*Subscriber {
	ti.mu.RLock()
	defer ti.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []*Subscriber
	for _, topic := range topics {
		for id, sub := range ti.topics[topic] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, sub)
		}
	}
	return out
}

func (ti *topicIndex) len() int {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return len(ti.topics)
}
