package event

import (
	"context"
	"sync"

	"github.com/op/go-logging"
	"github.com/viant/apool/service/messaging/memory"
)

var log = logging.MustGetLogger("apool/event")

// Handler receives lifecycle events; it must not block for long since all
// handlers share one dispatch goroutine.
type Handler func(*Event)

// Service fans pool lifecycle events out to subscribed handlers. Publish is
// safe to call with the pool lock held: it never blocks, dropping the event
// when the queue is saturated.
type Service struct {
	queue    *memory.Queue[Event]
	mux      sync.RWMutex
	handlers []Handler
}

// New creates an event service backed by an in-memory queue.
func New() *Service {
	return &Service{queue: memory.NewQueue[Event](memory.DefaultConfig())}
}

// Subscribe registers a handler for all subsequent events.
func (s *Service) Subscribe(handler Handler) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Publish enqueues an event for dispatch. A saturated queue drops the event
// rather than stalling the caller.
func (s *Service) Publish(event *Event) {
	if s == nil || event == nil {
		return
	}
	if !s.queue.TryPublish(event) {
		log.Debugf("dropped %v event for %v: queue full", event.Kind, event.AppGroupName)
	}
}

// Dispatch consumes events and invokes handlers until ctx is cancelled.
func (s *Service) Dispatch(ctx context.Context) error {
	for {
		message, err := s.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		event := message.T()
		_ = message.Ack()
		s.mux.RLock()
		handlers := s.handlers
		s.mux.RUnlock()
		for _, handler := range handlers {
			handler(event)
		}
	}
}
