package bus

import (
	"context"
	"sync"
)

// MessageBus connects the transport to the bot core. Inbound and Connected
// are written by the transport; Outbound is drained by DispatchOutbound and
// routed to the subscribed transport by name.
type MessageBus struct {
	Inbound   chan ChatMessage
	Connected chan Identity
	Outbound  chan OutboundMessage

	mu   sync.RWMutex
	subs map[string]func(OutboundMessage)
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		Inbound:   make(chan ChatMessage, bufSize),
		Connected: make(chan Identity, 1),
		Outbound:  make(chan OutboundMessage, bufSize),
		subs:      make(map[string]func(OutboundMessage)),
	}
}

// SubscribeOutbound registers the send handler for a named transport.
func (b *MessageBus) SubscribeOutbound(name string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = fn
}

// DispatchOutbound routes outbound messages to their transport until the
// context is cancelled. Messages for an unknown transport are dropped.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.mu.RLock()
			fn := b.subs[msg.Transport]
			b.mu.RUnlock()
			if fn != nil {
				fn(msg)
			}
		case <-ctx.Done():
			return
		}
	}
}
