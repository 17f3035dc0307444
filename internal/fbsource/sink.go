package fbsource

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/input"

	"github.com/Ouederniamin/lead-fb-sub001/internal/config"
	"github.com/Ouederniamin/lead-fb-sub001/internal/logging"
)

// Sink sends messages into Messenger conversations. It shares the Source's
// page so navigation state stays consistent.
type Sink struct {
	src *Source
	cfg *config.Config
	log *logging.Logger
}

func NewSink(src *Source, cfg *config.Config) *Sink {
	return &Sink{src: src, cfg: cfg, log: logging.New(cfg.Logging.Level).With("module", "fbsink")}
}

func (k *Sink) Send(ctx context.Context, conversationRef, text string) error {
	p, err := k.src.getPage(ctx)
	if err != nil {
		return err
	}
	if err := p.Navigate(k.src.threadURL(conversationRef)); err != nil {
		return err
	}
	if err := p.WaitLoad(); err != nil {
		return err
	}
	time.Sleep(1 * time.Second)

	box, err := p.Timeout(10 * time.Second).Element(`div[aria-label*="Message"][contenteditable="true"]`)
	if err != nil {
		box, err = p.Timeout(5 * time.Second).Element(`div[contenteditable="true"][role="textbox"]`)
	}
	if err != nil {
		ScreenshotOnError(p, "composer_not_found", err)
		return fmt.Errorf("message composer not found: %w", err)
	}
	if err := box.Click("left", 1); err != nil {
		return err
	}
	if err := box.Input(text); err != nil {
		return fmt.Errorf("failed to type message: %w", err)
	}
	time.Sleep(500 * time.Millisecond)

	if err := p.Keyboard.Press(input.Enter); err != nil {
		ScreenshotOnError(p, "send_fail", err)
		return fmt.Errorf("failed to send: %w", err)
	}
	time.Sleep(1 * time.Second)
	k.log.Info("message sent", "ref", conversationRef, "length", len(text))
	return nil
}
