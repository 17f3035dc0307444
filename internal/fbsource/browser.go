// Package fbsource drives the Facebook messaging surface through a real
// browser and implements the pipeline's ConversationSource and ActionSink
// contracts. All the brittle page heuristics live here; nothing outside this
// package touches rod.
package fbsource

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Ouederniamin/lead-fb-sub001/internal/config"
	"github.com/Ouederniamin/lead-fb-sub001/internal/logging"
)

// Browser owns one Chromium instance. It is a single stateful session: the
// pipeline drives it strictly sequentially, one account per instance.
type Browser struct {
	Rod *rod.Browser
	Cfg *config.Config
	log *logging.Logger
}

func New(ctx context.Context, cfg *config.Config) (*Browser, error) {
	log := logging.New(cfg.Logging.Level).With("module", "browser")
	// Leakless disabled to avoid AV false positives on Windows
	l := launcher.New().Leakless(false).Headless(cfg.Facebook.Headless)
	url, err := l.Launch()
	if err != nil {
		return nil, err
	}
	rb := rod.New().ControlURL(url)
	if err := rb.Connect(); err != nil {
		return nil, err
	}
	rb = rb.MustIgnoreCertErrors(true)
	log.Info("browser launched", "headless", cfg.Facebook.Headless)
	return &Browser{Rod: rb, Cfg: cfg, log: log}, nil
}

func (b *Browser) NewPage(ctx context.Context) (*rod.Page, error) {
	p, err := b.Rod.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, err
	}
	// Long default timeout; Messenger threads can be slow to settle.
	return p.Context(ctx).Timeout(300 * time.Second), nil
}

func (b *Browser) Close() {
	if b.Rod != nil {
		_ = b.Rod.Close()
	}
}

// Helpers

func HasElement(p *rod.Page, sel string) bool {
	_, err := p.Timeout(2 * time.Second).Element(sel)
	return err == nil
}

func HasElementWithText(p *rod.Page, text string) bool {
	_, err := p.Timeout(2*time.Second).ElementR("*", text)
	return err == nil
}

func ScreenshotOnError(p *rod.Page, prefix string, err error) error {
	if p == nil || err == nil {
		return err
	}
	path := fmt.Sprintf("%s-%d.png", prefix, time.Now().Unix())
	bts, _ := p.Screenshot(true, &proto.PageCaptureScreenshot{})
	_ = os.WriteFile(path, bts, 0644)
	return err
}
