// Package syncer diffs a conversation-preview snapshot against the contact
// ledger to find conversations with genuinely new incoming text.
package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/Ouederniamin/lead-fb-sub001/internal/logging"
	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
	"github.com/Ouederniamin/lead-fb-sub001/internal/source"
	"github.com/Ouederniamin/lead-fb-sub001/internal/store"
)

type Engine struct {
	st  *store.Store
	log *logging.Logger
}

func New(st *store.Store, log *logging.Logger) *Engine {
	return &Engine{st: st, log: log.With("module", "syncer")}
}

// Diff flags every snapshot entry whose preview text differs from the
// ledger's last known incoming message. Flagged contacts are staged to
// NEEDS_REPLY with the new preview before being returned, so a crash
// mid-cycle never re-detects the same text. Output preserves snapshot order
// (remote recency order).
//
// Skipped entries: unknown contact names (conversations not bound to a
// tracked lead), previews where the last message is ours, and contacts lost
// to a concurrent staging write.
func (e *Engine) Diff(ctx context.Context, accountID string, snapshot []source.Preview, now time.Time) ([]models.Contact, error) {
	contacts, err := e.st.ListContacts(ctx, accountID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*models.Contact, len(contacts))
	for i := range contacts {
		byName[contacts[i].ContactName] = &contacts[i]
	}

	var flagged []models.Contact
	for _, p := range snapshot {
		c, ok := byName[p.ContactName]
		if !ok {
			continue
		}
		if p.LastMessageIsOurs {
			continue
		}
		if p.LastMessagePreview == c.LastTheirMessage {
			continue
		}
		err := e.st.StageNeedsReply(ctx, c.ID, c.LastTheirMessage, p.LastMessagePreview, now)
		if errors.Is(err, store.ErrConflict) {
			e.log.Warn("lost staging race, skipping contact", "contact", c.ContactName)
			continue
		}
		if err != nil {
			return nil, err
		}
		c.State = models.StateNeedsReply
		c.LastTheirMessage = p.LastMessagePreview
		c.LastMessageIsOurs = false
		c.LastActivityAt = now
		flagged = append(flagged, *c)
	}
	return flagged, nil
}
