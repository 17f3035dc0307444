package fbsource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/Ouederniamin/lead-fb-sub001/internal/config"
	"github.com/Ouederniamin/lead-fb-sub001/internal/logging"
	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
	"github.com/Ouederniamin/lead-fb-sub001/internal/source"
)

// Source reads conversation previews and thread messages from the Messenger
// surface. One page is reused across reads; the pipeline never calls it
// concurrently.
type Source struct {
	br   *Browser
	cfg  *config.Config
	log  *logging.Logger
	page *rod.Page
}

func NewSource(br *Browser, cfg *config.Config) *Source {
	return &Source{br: br, cfg: cfg, log: logging.New(cfg.Logging.Level).With("module", "fbsource")}
}

func (s *Source) getPage(ctx context.Context) (*rod.Page, error) {
	if s.page != nil {
		return s.page, nil
	}
	p, err := s.br.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrUnavailable, err)
	}
	s.page = p
	return p, nil
}

func (s *Source) Close() {
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
}

// ListPreviews opens the chat list and returns one entry per visible
// conversation, in the surface's recency order. A preview starting with
// "You:" means the last message is ours.
func (s *Source) ListPreviews(ctx context.Context) ([]source.Preview, error) {
	p, err := s.getPage(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Navigate(s.cfg.Facebook.BaseURL + "messages/t/"); err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrUnavailable, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrUnavailable, err)
	}
	time.Sleep(2 * time.Second)

	rows, err := p.Timeout(15 * time.Second).Elements(`div[aria-label*="Chats"] a[role="link"][href*="/messages/t/"]`)
	if err != nil || len(rows) == 0 {
		// Fallback for the lighter DOM variant
		rows, err = p.Timeout(10 * time.Second).Elements(`a[href*="/messages/t/"]`)
		if err != nil {
			return nil, fmt.Errorf("%w: chat list not found: %v", source.ErrUnavailable, err)
		}
	}

	var out []source.Preview
	seen := make(map[string]bool)
	for _, row := range rows {
		spans, err := row.Elements("span")
		if err != nil || len(spans) == 0 {
			continue
		}
		var texts []string
		for _, sp := range spans {
			t, err := sp.Text()
			if err != nil {
				continue
			}
			t = strings.TrimSpace(t)
			if t != "" {
				texts = append(texts, t)
			}
		}
		// First non-empty span is the contact name, the following one the
		// preview text.
		if len(texts) < 2 {
			continue
		}
		name := texts[0]
		preview := texts[1]
		if seen[name] {
			continue
		}
		seen[name] = true

		isOurs := false
		if strings.HasPrefix(preview, "You:") {
			isOurs = true
			preview = strings.TrimSpace(strings.TrimPrefix(preview, "You:"))
		}
		// Strip the trailing relative timestamp Messenger appends, e.g.
		// "sounds good · 2h".
		if idx := strings.LastIndex(preview, " · "); idx > 0 {
			preview = strings.TrimSpace(preview[:idx])
		}
		out = append(out, source.Preview{
			ContactName:        name,
			LastMessagePreview: preview,
			LastMessageIsOurs:  isOurs,
		})
	}
	s.log.Debug("previews listed", "count", len(out))
	return out, nil
}

// ReadMessages opens the conversation and returns its visible messages,
// oldest first. Rows aligned to the right edge are ours.
func (s *Source) ReadMessages(ctx context.Context, conversationRef string) ([]source.ChatMessage, error) {
	p, err := s.getPage(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Navigate(s.threadURL(conversationRef)); err != nil {
		return nil, err
	}
	if err := p.WaitLoad(); err != nil {
		return nil, err
	}
	time.Sleep(2 * time.Second)

	rows, err := p.Timeout(15 * time.Second).Elements(`div[role="row"]`)
	if err != nil {
		return nil, fmt.Errorf("message rows not found: %w", err)
	}
	var out []source.ChatMessage
	for _, row := range rows {
		textEl, err := row.Element(`div[dir="auto"]`)
		if err != nil {
			continue
		}
		text, err := textEl.Text()
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		sender := models.SenderThem
		if cls, err := row.Eval(`() => {
			const b = this.querySelector('div[data-scope="messages_table"]') || this;
			return getComputedStyle(b).alignSelf === 'flex-end' ||
				!!this.querySelector('[aria-label*="You sent"]');
		}`); err == nil && cls.Value.Bool() {
			sender = models.SenderUs
		}
		out = append(out, source.ChatMessage{Sender: sender, Content: text})
	}
	s.log.Debug("messages read", "ref", conversationRef, "count", len(out))
	return out, nil
}

func (s *Source) threadURL(conversationRef string) string {
	if strings.HasPrefix(conversationRef, "http") {
		return conversationRef
	}
	return s.cfg.Facebook.BaseURL + "messages/t/" + conversationRef
}
