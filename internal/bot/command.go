package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mimicbot/mimic/internal/bus"
	"github.com/mimicbot/mimic/pkg/metrics"
)

// CommandHandler runs one administrative command.
type CommandHandler func(ctx context.Context, msg bus.ChatMessage, args []string)

// Command binds a handler to its help text.
type Command struct {
	Handler     CommandHandler
	Description string
}

// CommandInvocation is a resolved command plus its remaining arguments.
type CommandInvocation struct {
	Key         string
	Description string
	Args        []string
}

func (b *Bot) registerCommands() {
	b.commands = map[string]Command{
		"purge": {Handler: b.purgeCommand, Description: "purge: delete every message stored for you"},
		"help":  {Handler: b.helpCommand, Description: "help: list available commands"},
	}
}

// resolveCommand re-tokenizes msg and matches the token after the bot
// mention against the command table. Unknown keywords are indistinguishable
// from ordinary chat and fall through.
func (b *Bot) resolveCommand(msg bus.ChatMessage) (*CommandInvocation, bool) {
	id := b.Identity()
	if id.ID == "" {
		return nil, false
	}

	tokens := strings.Fields(msg.Text)
	if len(tokens) < 2 || tokens[0] != mentionToken(id.ID) {
		return nil, false
	}

	cmd, ok := b.commands[tokens[1]]
	if !ok {
		return nil, false
	}

	return &CommandInvocation{
		Key:         tokens[1],
		Description: cmd.Description,
		Args:        tokens[2:],
	}, true
}

// runCommand executes a resolved invocation. A help flag anywhere in the
// arguments replies with the command's description instead of running the
// handler, regardless of other arguments.
func (b *Bot) runCommand(ctx context.Context, msg bus.ChatMessage, inv *CommandInvocation) {
	if hasHelpFlag(inv.Args) {
		if cmd, ok := b.commands[inv.Key]; ok {
			b.send(cmd.Description, msg.Channel)
		}
		return
	}
	b.commands[inv.Key].Handler(ctx, msg, inv.Args)
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "-h" || a == "--help" {
			return true
		}
	}
	return false
}

func (b *Bot) purgeCommand(ctx context.Context, msg bus.ChatMessage, _ []string) {
	if err := b.store.RemoveByUser(ctx, msg.User); err != nil {
		metrics.StoreFailures.WithLabelValues(b.team, "remove").Inc()
		b.log.Error("purge failed", zap.String("user", msg.User), zap.Error(err))
		return
	}
	b.send(fmt.Sprintf("<@%s>: your stored messages have been purged", msg.User), msg.Channel)
}

func (b *Bot) helpCommand(_ context.Context, msg bus.ChatMessage, _ []string) {
	keys := make([]string, 0, len(b.commands))
	for key := range b.commands {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, b.commands[key].Description)
	}
	b.send(strings.Join(lines, "\n"), msg.Channel)
}
