// Package debounce answers "has the other party finished typing?" without a
// typing-indicator API: it re-reads a conversation until no previously-unseen
// incoming message has appeared for a full silence window.
package debounce

import (
	"context"
	"time"

	"github.com/Ouederniamin/lead-fb-sub001/internal/logging"
	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
	"github.com/Ouederniamin/lead-fb-sub001/internal/pacing"
	"github.com/Ouederniamin/lead-fb-sub001/internal/source"
)

type Collector struct {
	src source.ConversationSource
	clk pacing.Clock
	log *logging.Logger

	checkInterval time.Duration
	silenceWindow time.Duration
	maxWait       time.Duration
}

func New(src source.ConversationSource, clk pacing.Clock, log *logging.Logger,
	checkInterval, silenceWindow, maxWait time.Duration) *Collector {
	return &Collector{
		src:           src,
		clk:           clk,
		log:           log.With("module", "debounce"),
		checkInterval: checkInterval,
		silenceWindow: silenceWindow,
		maxWait:       maxWait,
	}
}

// Collect reads the conversation until the sender has been silent for the
// configured window (or the hard cap elapses with something collected) and
// returns every incoming message not yet in history, in first-observed order.
// An empty result means the flagged preview was a false positive and the
// contact should be abandoned for this pass.
func (c *Collector) Collect(ctx context.Context, conversationRef string, history []models.Message) ([]string, error) {
	existing := make(map[string]bool, len(history))
	for _, m := range history {
		existing[m.Content] = true
	}

	var collected []string
	seen := make(map[string]bool)

	start := c.clk.Now()
	lastNewAt := start

	absorb := func(msgs []source.ChatMessage) {
		for _, m := range msgs {
			if m.Sender != models.SenderThem {
				continue
			}
			if existing[m.Content] || seen[m.Content] {
				continue
			}
			seen[m.Content] = true
			collected = append(collected, m.Content)
			lastNewAt = c.clk.Now()
		}
	}

	msgs, err := c.src.ReadMessages(ctx, conversationRef)
	if err != nil {
		return nil, err
	}
	absorb(msgs)

	for {
		now := c.clk.Now()
		if now.Sub(lastNewAt) >= c.silenceWindow {
			break
		}
		if len(collected) > 0 && now.Sub(start) >= c.maxWait {
			c.log.Warn("debounce hard cap reached", "ref", conversationRef, "collected", len(collected))
			break
		}
		if err := pacing.Sleep(ctx, c.clk, c.checkInterval); err != nil {
			return nil, err
		}
		msgs, err := c.src.ReadMessages(ctx, conversationRef)
		if err != nil {
			return nil, err
		}
		absorb(msgs)
	}
	return collected, nil
}
