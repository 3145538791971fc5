package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// subscriberBuffer bounds each subscriber's pending event queue. A
// subscriber that falls this far behind starts losing frames; observers
// reconcile by polling the status endpoint.
const subscriberBuffer = 256

// subscriber owns a dedicated queue drained by one goroutine, so each
// handler sees events in publish order
type subscriber struct {
	handler interfaces.EventHandler
	ch      chan interfaces.Event
}

// Service implements EventService with pub/sub and per-subscriber
// serialized dispatch
type Service struct {
	subscribers map[interfaces.EventType][]*subscriber
	mu          sync.RWMutex
	wg          sync.WaitGroup
	closed      bool
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType][]*subscriber),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type and starts its dispatcher
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("event service is closed")
	}

	sub := &subscriber{
		handler: handler,
		ch:      make(chan interfaces.Event, subscriberBuffer),
	}
	s.subscribers[eventType] = append(s.subscribers[eventType], sub)

	s.wg.Add(1)
	go s.dispatch(sub)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return nil
}

// dispatch drains one subscriber's queue until Close
func (s *Service) dispatch(sub *subscriber) {
	defer s.wg.Done()

	for event := range sub.ch {
		if err := sub.handler(context.Background(), event); err != nil {
			s.logger.Error().
				Err(err).
				Str("event_type", string(event.Type)).
				Msg("Event handler failed")
		}
	}
}

// Publish enqueues an event for every subscriber without blocking the
// caller. Each subscriber receives events in publish order; a full queue
// drops the event for that subscriber only. Callers publish after their
// storage writes commit, so observers never see state that was later
// rolled back.
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}

	for _, sub := range s.subscribers[event.Type] {
		select {
		case sub.ch <- event:
		default:
			s.logger.Warn().
				Str("event_type", string(event.Type)).
				Msg("Subscriber queue full, dropping event")
		}
	}

	return nil
}

// PublishSync invokes every handler inline and surfaces their errors
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	subs := s.subscribers[event.Type]
	s.mu.RUnlock()

	var errs int
	for _, sub := range subs {
		if err := sub.handler(ctx, event); err != nil {
			s.logger.Error().
				Err(err).
				Str("event_type", string(event.Type)).
				Msg("Event handler failed")
			errs++
		}
	}

	if errs > 0 {
		return fmt.Errorf("event handlers failed: %d errors", errs)
	}
	return nil
}

// Close stops accepting events, drains the subscriber queues, and waits
// for the dispatchers to exit
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, subs := range s.subscribers {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	s.subscribers = make(map[interfaces.EventType][]*subscriber)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Event service closed")

	return nil
}
