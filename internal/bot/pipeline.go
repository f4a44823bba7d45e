package bot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mimicbot/mimic/pkg/metrics"
)

// generate runs the fetch-concatenate-generate-post sequence for one
// request. Store or generator failures end the request without a user
// visible reply; an empty corpus gets the fixed denial.
func (b *Bot) generate(ctx context.Context, req GenerationRequest) {
	msgs, err := b.store.FindByUser(ctx, req.TargetUser, req.Limit)
	if err != nil {
		metrics.StoreFailures.WithLabelValues(b.team, "find").Inc()
		b.log.Error("corpus query failed", zap.String("target", req.TargetUser), zap.Error(err))
		return
	}

	if len(msgs) == 0 {
		metrics.Denials.WithLabelValues(b.team, "empty_corpus").Inc()
		b.send(denialText, req.Channel)
		return
	}

	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = m.Text
	}

	// Limit doubles as the generation size bound, not just the sample cap.
	out, err := b.gen.Generate(strings.Join(parts, " "), req.Limit)
	if err != nil {
		b.log.Error("generation failed", zap.String("target", req.TargetUser), zap.Error(err))
		return
	}

	b.send(fmt.Sprintf("<@%s>: %s", req.TargetUser, out), req.Channel)
}
