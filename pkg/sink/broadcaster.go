package sink

import (
	"sync"
	"time"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
)

const DefaultSubscriberBuffer = 256

// Broadcaster turns sink calls into events and fans them out to
// subscribers. A slow subscriber loses its oldest events, never blocks
// the publisher.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan domain.Event]struct{}
	buffer      int
	closed      bool
	now         func() time.Time
	logger      logging.Logger
}

func NewBroadcaster(buffer int, logger logging.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Broadcaster{
		subscribers: make(map[chan domain.Event]struct{}),
		buffer:      buffer,
		now:         time.Now,
		logger:      logger,
	}
}

func (b *Broadcaster) Output(systemID string, data string, class domain.Classification) {
	b.Publish(domain.Event{Type: domain.EventOutput, SystemID: systemID, Data: data, Classification: class})
}

func (b *Broadcaster) Stopped(systemID string) {
	b.Publish(domain.Event{Type: domain.EventStopped, SystemID: systemID})
}

func (b *Broadcaster) Deployed(systemID string, success bool) {
	b.Publish(domain.Event{Type: domain.EventDeployed, SystemID: systemID, Success: success})
}

func (b *Broadcaster) Publish(event domain.Event) {
	if event.Time.IsZero() {
		event.Time = b.now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

// Subscribe registers a new subscriber; the returned cancel func
// unsubscribes and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan domain.Event, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, errors.NewInternalError("broadcaster is closed", nil)
	}

	ch := make(chan domain.Event, b.buffer)
	b.subscribers[ch] = struct{}{}
	b.logger.Debugf("Subscriber added, total: %d", len(b.subscribers))

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.unsubscribe(ch) })
	}
	return ch, cancel, nil
}

func (b *Broadcaster) unsubscribe(ch chan domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
	b.logger.Debugf("Subscriber removed, total: %d", len(b.subscribers))
}

// Close ends every subscription
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}
