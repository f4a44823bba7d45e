package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mimicbot/mimic/internal/bus"
	"github.com/mimicbot/mimic/internal/store"
	"github.com/mimicbot/mimic/pkg/metrics"
)

// excludedSubtypes lists message subtypes that are never persisted. The set
// is open for extension; file shares are the only known case so far.
var excludedSubtypes = map[string]struct{}{
	"file_share": {},
}

func eligible(msg bus.ChatMessage) bool {
	_, skip := excludedSubtypes[msg.Subtype]
	return !skip
}

// parseTimestamp converts the platform's "seconds.fraction" epoch value to
// an absolute timestamp. An empty value resolves to the current time.
func parseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Now(), nil
	}

	secPart, fracPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}

	var nsec int64
	if fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		frac, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		for i := len(fracPart); i < 9; i++ {
			frac *= 10
		}
		nsec = frac
	}

	return time.Unix(sec, nsec), nil
}

// ingest persists one eligible message. Failures are surfaced in the log
// and the failure counter but never stop the event loop.
func (b *Bot) ingest(ctx context.Context, msg bus.ChatMessage) {
	if msg.User == "" || msg.Channel == "" {
		b.log.Debug("skipping message without user or channel", zap.String("type", msg.Type))
		return
	}

	ts, err := parseTimestamp(msg.Ts)
	if err != nil {
		metrics.StoreFailures.WithLabelValues(b.team, "insert").Inc()
		b.log.Error("bad message timestamp", zap.String("ts", msg.Ts), zap.Error(err))
		return
	}

	team := msg.Team
	if team == "" {
		team = b.team
	}

	rec := store.Message{
		Type:    msg.Type,
		Channel: msg.Channel,
		User:    msg.User,
		Text:    msg.Text,
		TS:      ts,
		Team:    team,
	}
	if err := b.store.Insert(ctx, rec); err != nil {
		metrics.StoreFailures.WithLabelValues(b.team, "insert").Inc()
		b.log.Error("message insert failed", zap.String("user", msg.User), zap.Error(err))
		return
	}
	metrics.MessagesStored.WithLabelValues(b.team).Inc()
}
