package bus

import (
	"context"
	"sync"

	"dosewise/internal/domain/event"

	"github.com/rs/zerolog/log"
)

// AsyncEventBus implements EventBus with asynchronous publishing
type AsyncEventBus struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	wg       sync.WaitGroup
	errorCh  chan error
}

// NewAsyncEventBus creates a new async event bus
func NewAsyncEventBus() *AsyncEventBus {
	return &AsyncEventBus{
		handlers: make(map[string][]EventHandler),
		errorCh:  make(chan error, 100),
	}
}

// Subscribe registers a handler for a specific event type
func (b *AsyncEventBus) Subscribe(eventType string, handler EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// Start initializes the event bus
func (b *AsyncEventBus) Start(ctx context.Context) error {
	b.startErrorMonitor(ctx)
	return nil
}

// Stop gracefully shuts down the event bus
func (b *AsyncEventBus) Stop() error {
	b.wg.Wait()
	close(b.errorCh)
	return nil
}

// Publish publishes an event asynchronously to all subscribed handlers
func (b *AsyncEventBus) Publish(ctx context.Context, evt event.DomainEvent) error {
	b.mu.RLock()
	handlers, exists := b.handlers[evt.EventType()]
	b.mu.RUnlock()

	if !exists || len(handlers) == 0 {
		return nil
	}

	b.wg.Add(len(handlers))
	for _, handler := range handlers {
		go b.publishToHandler(ctx, handler, evt)
	}

	return nil
}

// PublishBatch publishes multiple events asynchronously
func (b *AsyncEventBus) PublishBatch(ctx context.Context, events []event.DomainEvent) error {
	for _, evt := range events {
		if err := b.Publish(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until all in-flight handlers finish
func (b *AsyncEventBus) Wait() {
	b.wg.Wait()
}

func (b *AsyncEventBus) publishToHandler(ctx context.Context, handler EventHandler, evt event.DomainEvent) {
	defer b.wg.Done()

	if err := handler.Handle(ctx, evt); err != nil {
		select {
		case b.errorCh <- err:
		default:
			log.Warn().
				Str("event_type", evt.EventType()).
				Err(err).
				Msg("handler error dropped, error channel full")
		}
	}
}

func (b *AsyncEventBus) startErrorMonitor(ctx context.Context) {
	go func() {
		for {
			select {
			case err, ok := <-b.errorCh:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("async event handler failed")
			case <-ctx.Done():
				return
			}
		}
	}()
}
