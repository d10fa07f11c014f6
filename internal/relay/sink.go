package relay

import (
	"context"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// Sink hands a message to the broker. A nil Result means topic has no
// publisher and the message can never be delivered.
type Sink interface {
	Publish(ctx context.Context, topic string, msg *pubsub.Message) Result
}

// Result resolves once the broker acknowledges or rejects the message.
type Result interface {
	Get(ctx context.Context) (string, error)
}

type publisherSource interface {
	Publisher(name string) *pubsub.Publisher
}

// PubSubSink keeps one publisher per topic so batching and flow control are
// shared across relay batches.
type PubSubSink struct {
	source     publisherSource
	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

func NewPubSubSink(source publisherSource) *PubSubSink {
	return &PubSubSink{source: source, publishers: map[string]*pubsub.Publisher{}}
}

func (s *PubSubSink) Publish(ctx context.Context, topic string, msg *pubsub.Message) Result {
	p := s.publisher(topic)
	if p == nil {
		return nil
	}
	return p.Publish(ctx, msg)
}

func (s *PubSubSink) publisher(topic string) *pubsub.Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.publishers[topic]; ok {
		return p
	}
	p := s.source.Publisher(topic)
	if p != nil {
		s.publishers[topic] = p
	}
	return p
}

// Stop flushes and releases every publisher.
func (s *PubSubSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, p := range s.publishers {
		p.Stop()
		delete(s.publishers, topic)
	}
}
