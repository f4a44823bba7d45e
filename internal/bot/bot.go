// Package bot implements the event-classification chain: mention parsing,
// command dispatch, the generation pipeline, and message ingestion.
package bot

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mimicbot/mimic/internal/bus"
	"github.com/mimicbot/mimic/internal/store"
	"github.com/mimicbot/mimic/pkg/logger"
	"github.com/mimicbot/mimic/pkg/metrics"
)

// denialText is the fixed reply for requests that cannot be fulfilled.
const denialText = "I'm sorry, Dave. I'm afraid I can't do that"

// Store is the persistence surface the bot depends on.
type Store interface {
	Insert(ctx context.Context, m store.Message) error
	FindByUser(ctx context.Context, user string, limit int) ([]store.Message, error)
	RemoveByUser(ctx context.Context, user string) error
}

// Generator produces one synthetic string from a seed corpus, bounded by
// maxWords. Deterministic behavior is not assumed.
type Generator interface {
	Generate(seed string, maxWords int) (string, error)
}

// Bot runs one team's event loop. Identity is unknown until the transport
// reports a successful connection; until then no message is treated as
// addressed to the bot.
type Bot struct {
	team      string
	limit     int
	transport string
	bus       *bus.MessageBus
	store     Store
	gen       Generator
	commands  map[string]Command
	log       *logger.Logger

	mu       sync.RWMutex
	identity bus.Identity
}

// New creates a Bot for one team. transportName selects where outbound
// replies are routed on the bus.
func New(team string, limit int, b *bus.MessageBus, st Store, gen Generator, transportName string, log *logger.Logger) *Bot {
	bot := &Bot{
		team:      team,
		limit:     limit,
		transport: transportName,
		bus:       b,
		store:     st,
		gen:       gen,
		log:       log,
	}
	bot.registerCommands()
	return bot
}

// Identity returns the resolved identity, zero until connected.
func (b *Bot) Identity() bus.Identity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.identity
}

func (b *Bot) setIdentity(id bus.Identity) {
	b.mu.Lock()
	b.identity = id
	b.mu.Unlock()
	b.log.Info("identity resolved", zap.String("name", id.Name), zap.String("id", id.ID))
}

// Run processes bus events until the context is cancelled. Classification is
// synchronous; anything that touches the store or the generator runs in its
// own goroutine so intake never blocks.
func (b *Bot) Run(ctx context.Context) {
	for {
		select {
		case id := <-b.bus.Connected:
			b.setIdentity(id)
		case msg := <-b.bus.Inbound:
			b.handleMessage(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg bus.ChatMessage) {
	if req, consumed := b.parseMention(msg); consumed {
		if req != nil {
			metrics.GenerationRequests.WithLabelValues(b.team).Inc()
			go b.generate(ctx, *req)
		}
		return
	}

	if inv, ok := b.resolveCommand(msg); ok {
		metrics.Commands.WithLabelValues(b.team, inv.Key).Inc()
		go b.runCommand(ctx, msg, inv)
		return
	}

	if !eligible(msg) {
		return
	}
	go b.ingest(ctx, msg)
}

func (b *Bot) send(text, channel string) {
	b.bus.Outbound <- bus.OutboundMessage{
		Transport: b.transport,
		Channel:   channel,
		Text:      text,
	}
}
