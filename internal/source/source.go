// Package source defines the external collaborator contracts the pipeline
// runs against: the remote conversation surface, the outbound action sink and
// the reply generator. Implementations live elsewhere (internal/fbsource,
// internal/replygen); everything in the pipeline depends only on these
// interfaces.
package source

import (
	"context"
	"errors"

	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
)

// ErrUnavailable means the remote surface cannot be used at all. It aborts
// the whole cycle; per-conversation read failures do not.
var ErrUnavailable = errors.New("source: conversation source unavailable")

// Preview is one entry of the remote conversation list.
type Preview struct {
	ContactName        string
	LastMessagePreview string
	LastMessageIsOurs  bool
}

// ChatMessage is one message of a fully opened conversation.
type ChatMessage struct {
	Sender  models.Sender
	Content string
}

// ConversationSource reads the remote conversation surface. It is stateful
// and not safe for concurrent use; one instance serves one account.
type ConversationSource interface {
	// ListPreviews returns current conversation previews in the surface's
	// recency order (most recent first).
	ListPreviews(ctx context.Context) ([]Preview, error)
	// ReadMessages opens the conversation behind ref and returns its recent
	// messages, oldest first.
	ReadMessages(ctx context.Context, conversationRef string) ([]ChatMessage, error)
}

// ActionSink sends outbound text into a conversation.
type ActionSink interface {
	Send(ctx context.Context, conversationRef, text string) error
}

// ReplyGenerator produces reply strings for a contact given the full ordered
// history. An empty slice means "do not reply".
type ReplyGenerator interface {
	Generate(ctx context.Context, contactName string, history []ChatMessage, gctx models.GenerationContext) ([]string, error)
}
