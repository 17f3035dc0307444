// Package reply turns a contact's collected incoming messages into sent,
// persisted replies.
package reply

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ouederniamin/lead-fb-sub001/internal/logging"
	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
	"github.com/Ouederniamin/lead-fb-sub001/internal/pacing"
	"github.com/Ouederniamin/lead-fb-sub001/internal/source"
	"github.com/Ouederniamin/lead-fb-sub001/internal/store"
)

// ErrNoReply is returned when the generator legitimately declines to answer
// (an empty reply list). The contact stays NEEDS_REPLY and is retried next
// pass; callers should not report it as a failure.
var ErrNoReply = errors.New("reply: generator declined")

type Orchestrator struct {
	st   *store.Store
	sink source.ActionSink
	gen  source.ReplyGenerator
	clk  pacing.Clock
	log  *logging.Logger

	minDelayMs int
	maxDelayMs int
}

func New(st *store.Store, sink source.ActionSink, gen source.ReplyGenerator,
	clk pacing.Clock, log *logging.Logger, minDelayMs, maxDelayMs int) *Orchestrator {
	return &Orchestrator{
		st:         st,
		sink:       sink,
		gen:        gen,
		clk:        clk,
		log:        log.With("module", "reply"),
		minDelayMs: minDelayMs,
		maxDelayMs: maxDelayMs,
	}
}

// Respond flushes the collected incoming messages to the ledger, asks the
// generator for replies and sends them one at a time with human pacing,
// persisting each sent string immediately after a successful send. Only a
// fully sent batch advances the contact to WAITING; any failure leaves it in
// NEEDS_REPLY so the next pass retries.
//
// Returns the number of replies sent, which can be non-zero even on error
// (mid-batch send failure).
func (o *Orchestrator) Respond(ctx context.Context, contact *models.Contact, collected []string, gctx models.GenerationContext) (int, error) {
	now := o.clk.Now()
	// Durable de-duplication point: collected texts become Messages exactly
	// once, oldest-observed first.
	if _, err := o.st.AppendMessages(ctx, contact.ID, models.SenderThem, collected, now); err != nil {
		return 0, fmt.Errorf("flush collected messages: %w", err)
	}

	history, err := o.st.Messages(ctx, contact.ID)
	if err != nil {
		return 0, err
	}
	chat := make([]source.ChatMessage, 0, len(history))
	for _, m := range history {
		chat = append(chat, source.ChatMessage{Sender: m.Sender, Content: m.Content})
	}

	replies, err := o.gen.Generate(ctx, contact.ContactName, chat, gctx)
	if err != nil {
		return 0, fmt.Errorf("generate reply: %w", err)
	}
	if len(replies) == 0 {
		o.log.Info("generator declined to reply", "contact", contact.ContactName)
		return 0, ErrNoReply
	}

	sent := 0
	for i, text := range replies {
		if i > 0 {
			if err := pacing.SleepRandom(ctx, o.clk, o.minDelayMs, o.maxDelayMs); err != nil {
				return sent, err
			}
		}
		if err := o.sink.Send(ctx, contact.ConversationRef, text); err != nil {
			return sent, fmt.Errorf("send reply %d/%d: %w", i+1, len(replies), err)
		}
		// Persist immediately so a mid-batch failure leaves a correct,
		// resumable history. A sent message must never go unpersisted, so the
		// write survives cycle cancellation.
		if err := o.st.AppendMessage(context.WithoutCancel(ctx), contact.ID, models.SenderUs, text, o.clk.Now()); err != nil {
			return sent, fmt.Errorf("persist sent reply: %w", err)
		}
		sent++
	}

	if err := o.st.MarkReplied(ctx, contact.ID, o.clk.Now()); err != nil {
		return sent, err
	}
	o.log.Info("reply batch complete", "contact", contact.ContactName, "replies", sent)
	return sent, nil
}
