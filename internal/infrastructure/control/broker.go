package control

import (
	"sync"

	"duosync/internal/core/domain"

	"go.uber.org/zap"
)

// Broker fans service events out to every connected UI client. Publishing
// never blocks: clients that cannot keep up lose events and are expected to
// refetch state over the HTTP API.
type Broker struct {
	mu     sync.RWMutex
	subs   map[chan domain.Event]struct{}
	logger *zap.SugaredLogger
}

func NewBroker(logger *zap.SugaredLogger) *Broker {
	return &Broker{
		subs:   make(map[chan domain.Event]struct{}),
		logger: logger,
	}
}

// Publish implements ports.EventPublisher.
func (b *Broker) Publish(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			b.logger.Debugw("dropping event for slow subscriber", "type", event.Type)
		}
	}
}

// Subscribe registers a new event stream. The caller must Unsubscribe when
// done.
func (b *Broker) Subscribe() chan domain.Event {
	sub := make(chan domain.Event, 64)
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *Broker) Unsubscribe(sub chan domain.Event) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
