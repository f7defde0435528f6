package events

import (
	"context"
	"sync"
)

// Publisher delivers workflow lifecycle events to the platform event bus.
// Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any) error
	Close() error
}

// Published is one event captured by the MemoryPublisher.
type Published struct {
	Type    string
	Payload map[string]any
}

// MemoryPublisher records events in memory. Used by tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Published
}

// NewMemoryPublisher creates an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, eventType string, payload map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Published{Type: eventType, Payload: payload})
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Events returns a snapshot of everything published so far.
func (p *MemoryPublisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.events...)
}
