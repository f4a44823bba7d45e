package bot

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mimicbot/mimic/internal/bus"
	"github.com/mimicbot/mimic/pkg/metrics"
)

const mentionPrefix = "<@"

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

func mentionToken(id string) string {
	return mentionPrefix + id + ">"
}

// stripMention reduces a mention token to the bare user id.
func stripMention(token string) string {
	return nonAlnum.ReplaceAllString(token, "")
}

// GenerationRequest is a resolved intent to synthesize text for a user.
type GenerationRequest struct {
	TargetUser string
	Channel    string
	Limit      int
}

// parseMention classifies msg against the bot's identity. The second return
// reports whether the message was consumed: a non-nil request means the
// pipeline should run; nil with consumed=true means a denial was already
// sent. consumed=false hands the message to the next classification stage.
func (b *Bot) parseMention(msg bus.ChatMessage) (*GenerationRequest, bool) {
	id := b.Identity()
	if id.ID == "" {
		return nil, false
	}

	tokens := strings.Fields(msg.Text)
	if len(tokens) < 2 || tokens[0] != mentionToken(id.ID) {
		return nil, false
	}

	var target string
	switch {
	case tokens[1] == "me":
		target = msg.User
	case strings.HasPrefix(tokens[1], mentionPrefix):
		target = stripMention(tokens[1])
		if target == id.ID {
			metrics.Denials.WithLabelValues(b.team, "self").Inc()
			b.send(denialText, msg.Channel)
			return nil, true
		}
	default:
		return nil, false
	}

	limit := b.limit
	if len(tokens) > 2 {
		if n, err := strconv.Atoi(tokens[2]); err == nil && n > 0 {
			limit = n
		}
	}

	return &GenerationRequest{
		TargetUser: target,
		Channel:    msg.Channel,
		Limit:      limit,
	}, true
}
