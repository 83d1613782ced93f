package pubsub

import (
	"context"
	"sync"
)

// Nop drops published events and never delivers any. Subscription channels
// close when their context ends.
type Nop struct {
	mu   sync.Mutex
	subs map[string]context.CancelFunc
}

// NewNop creates a Nop bus.
func NewNop() *Nop {
	return &Nop{subs: make(map[string]context.CancelFunc)}
}

func (n *Nop) Publish(ctx context.Context, channel string, event *Event) error {
	return nil
}

func (n *Nop) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return n.subscribe(ctx, channel), nil
}

func (n *Nop) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return n.subscribe(ctx, pattern), nil
}

func (n *Nop) subscribe(ctx context.Context, key string) <-chan *Event {
	subCtx, cancel := context.WithCancel(ctx)

	n.mu.Lock()
	if prev, ok := n.subs[key]; ok {
		prev()
	}
	n.subs[key] = cancel
	n.mu.Unlock()

	ch := make(chan *Event)
	go func() {
		<-subCtx.Done()
		close(ch)
	}()
	return ch
}

func (n *Nop) Unsubscribe(ctx context.Context, channel string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cancel, ok := n.subs[channel]; ok {
		cancel()
		delete(n.subs, channel)
	}
	return nil
}

func (n *Nop) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for key, cancel := range n.subs {
		cancel()
		delete(n.subs, key)
	}
	return nil
}
