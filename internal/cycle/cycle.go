// Package cycle ties the pipeline together: one pass runs sync, then
// debounce and reply for every flagged contact, strictly sequentially per
// account. Continuous mode repeats passes until no activity has been seen for
// the idle timeout.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ouederniamin/lead-fb-sub001/internal/debounce"
	"github.com/Ouederniamin/lead-fb-sub001/internal/lease"
	"github.com/Ouederniamin/lead-fb-sub001/internal/logging"
	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
	"github.com/Ouederniamin/lead-fb-sub001/internal/pacing"
	"github.com/Ouederniamin/lead-fb-sub001/internal/reply"
	"github.com/Ouederniamin/lead-fb-sub001/internal/source"
	"github.com/Ouederniamin/lead-fb-sub001/internal/store"
	"github.com/Ouederniamin/lead-fb-sub001/internal/syncer"
)

type Options struct {
	// IdleTimeout of zero means exactly one pass; positive values keep
	// polling until no contact has been flagged for this long.
	IdleTimeout time.Duration
	// Context is forwarded opaquely to the reply generator.
	Context models.GenerationContext
}

type ContactError struct {
	ContactName string `json:"contactName"`
	Err         string `json:"error"`
}

// Result summarizes one RunCycle invocation. Partial failures are collected
// here, never raised.
type Result struct {
	RunID             string         `json:"runId"`
	AccountID         string         `json:"accountId"`
	Passes            int            `json:"passes"`
	ContactsProcessed int            `json:"contactsProcessed"`
	MessagesDetected  int            `json:"messagesDetected"`
	RepliesSent       int            `json:"repliesSent"`
	Errors            []ContactError `json:"errors,omitempty"`
}

type Controller struct {
	st        *store.Store
	src       source.ConversationSource
	engine    *syncer.Engine
	collector *debounce.Collector
	orch      *reply.Orchestrator
	leases    lease.Registry
	clk       pacing.Clock
	log       *logging.Logger

	pollInterval time.Duration
	leaseTTL     time.Duration
}

func New(st *store.Store, src source.ConversationSource, engine *syncer.Engine,
	collector *debounce.Collector, orch *reply.Orchestrator, leases lease.Registry,
	clk pacing.Clock, log *logging.Logger, pollInterval, leaseTTL time.Duration) *Controller {
	return &Controller{
		st:           st,
		src:          src,
		engine:       engine,
		collector:    collector,
		orch:         orch,
		leases:       leases,
		clk:          clk,
		log:          log.With("module", "cycle"),
		pollInterval: pollInterval,
		leaseTTL:     leaseTTL,
	}
}

// RunCycle drives the full pipeline for one account. It returns an error only
// for whole-cycle failures: a held lease, or an unusable conversation source.
func (c *Controller) RunCycle(ctx context.Context, accountID string, opts Options) (*Result, error) {
	l, err := c.leases.Acquire(ctx, accountID, c.leaseTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.leases.Release(context.WithoutCancel(ctx), l) }()

	res := &Result{RunID: uuid.NewString(), AccountID: accountID}
	c.log.Info("cycle started", "run_id", res.RunID, "account", accountID, "idle_timeout", opts.IdleTimeout)

	lastActivity := c.clk.Now()
	for {
		flagged, err := c.runPass(ctx, accountID, opts, res)
		if err != nil {
			if res.Passes == 0 {
				return nil, err
			}
			// Later passes already produced useful work; report it.
			return res, err
		}
		res.Passes++
		if flagged > 0 {
			lastActivity = c.clk.Now()
		}

		if opts.IdleTimeout <= 0 {
			break
		}
		if c.clk.Now().Sub(lastActivity) >= opts.IdleTimeout {
			c.log.Info("idle timeout reached", "run_id", res.RunID)
			break
		}
		if err := pacing.Sleep(ctx, c.clk, c.pollInterval); err != nil {
			break
		}
	}
	c.log.Info("cycle finished", "run_id", res.RunID,
		"passes", res.Passes, "processed", res.ContactsProcessed,
		"detected", res.MessagesDetected, "sent", res.RepliesSent, "errors", len(res.Errors))
	return res, nil
}

// runPass executes one sync -> debounce -> reply pass and returns how many
// contacts were flagged.
func (c *Controller) runPass(ctx context.Context, accountID string, opts Options, res *Result) (int, error) {
	previews, err := c.src.ListPreviews(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", source.ErrUnavailable, err)
	}
	flagged, err := c.engine.Diff(ctx, accountID, previews, c.clk.Now())
	if err != nil {
		return 0, err
	}

	for i := range flagged {
		contact := &flagged[i]
		if ctx.Err() != nil {
			// Cancellation mid-pass: already-sent replies are persisted by the
			// orchestrator; remaining contacts wait for the next cycle.
			break
		}
		if err := c.processContact(ctx, contact, opts, res); err != nil {
			res.Errors = append(res.Errors, ContactError{ContactName: contact.ContactName, Err: err.Error()})
			c.log.Warn("contact processing failed", "contact", contact.ContactName, "err", err)
			if errors.Is(err, ctx.Err()) && ctx.Err() != nil {
				break
			}
			continue
		}
		res.ContactsProcessed++
	}
	return len(flagged), nil
}

func (c *Controller) processContact(ctx context.Context, contact *models.Contact, opts Options, res *Result) error {
	history, err := c.st.Messages(ctx, contact.ID)
	if err != nil {
		return err
	}
	collected, err := c.collector.Collect(ctx, contact.ConversationRef, history)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	if len(collected) == 0 {
		// Preview diff false positive: the text already existed in history.
		c.log.Info("nothing new after debounce, abandoning for this pass", "contact", contact.ContactName)
		return nil
	}
	res.MessagesDetected += len(collected)

	sent, err := c.orch.Respond(ctx, contact, collected, opts.Context)
	res.RepliesSent += sent
	if errors.Is(err, reply.ErrNoReply) {
		// A declined reply is not a failure; the contact stays NEEDS_REPLY
		// and is retried next pass.
		c.log.Info("generator declined, retrying next pass", "contact", contact.ContactName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("respond: %w", err)
	}
	return nil
}
