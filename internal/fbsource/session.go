package fbsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Ouederniamin/lead-fb-sub001/internal/config"
	"github.com/Ouederniamin/lead-fb-sub001/internal/logging"
)

// Session handles login and cookie reuse for one Facebook account.
type Session struct {
	br        *Browser
	cfg       *config.Config
	accountID string
	log       *logging.Logger
}

func NewSession(br *Browser, cfg *config.Config, accountID string) *Session {
	return &Session{
		br:        br,
		cfg:       cfg,
		accountID: accountID,
		log:       logging.New(cfg.Logging.Level).With("module", "session", "account", accountID),
	}
}

// EnsureLoggedIn validates a cookie session first and falls back to a
// credential login, persisting fresh cookies on success.
func (s *Session) EnsureLoggedIn(ctx context.Context) error {
	p, err := s.br.NewPage(ctx)
	if err != nil {
		return err
	}
	defer p.Close()
	if err := s.loadCookies(p); err == nil {
		if s.validateSession(ctx, p) {
			s.log.Info("session validated using cookies")
			return nil
		}
	}
	if err := s.login(ctx, p); err != nil {
		return err
	}
	if err := s.saveCookies(p); err != nil {
		s.log.Warn("save cookies failed", "err", err)
	}
	return nil
}

func (s *Session) login(ctx context.Context, p *rod.Page) error {
	email := os.Getenv("FACEBOOK_EMAIL")
	pass := os.Getenv("FACEBOOK_PASSWORD")
	if email == "" || pass == "" {
		return errors.New("missing FACEBOOK_EMAIL or FACEBOOK_PASSWORD env")
	}

	s.log.Info("attempting login", "email", email)
	if err := p.Navigate(s.cfg.Facebook.BaseURL + "login"); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("login page load failed: %w", err)
	}
	time.Sleep(1 * time.Second)

	emailInput, err := p.Timeout(10 * time.Second).Element("input#email, input[name='email']")
	if err != nil {
		return fmt.Errorf("email input not found: %w", err)
	}
	if err := emailInput.Input(email); err != nil {
		return err
	}
	passInput, err := p.Timeout(5 * time.Second).Element("input#pass, input[name='pass']")
	if err != nil {
		return fmt.Errorf("password input not found: %w", err)
	}
	if err := passInput.Input(pass); err != nil {
		return err
	}
	loginBtn, err := p.Timeout(5 * time.Second).Element("button[name='login'], button[type='submit']")
	if err != nil {
		return fmt.Errorf("login button not found: %w", err)
	}
	if err := loginBtn.Click("left", 1); err != nil {
		return err
	}

	time.Sleep(5 * time.Second)
	currentURL := p.MustInfo().URL

	if strings.Contains(currentURL, "checkpoint") {
		ScreenshotOnError(p, "login_checkpoint", errors.New("checkpoint"))
		return errors.New("login blocked by checkpoint/verification - please login manually in browser first")
	}
	if s.validateSession(ctx, p) {
		s.log.Info("login successful", "url", currentURL)
		return nil
	}
	if errEl, err := p.Timeout(2 * time.Second).Element("div[role='alert'], ._9ay7"); err == nil {
		if errText, _ := errEl.Text(); errText != "" {
			ScreenshotOnError(p, "login_error", errors.New("login failed"))
			return fmt.Errorf("login failed: %s", errText)
		}
	}
	ScreenshotOnError(p, "login_unknown_fail", errors.New("unknown login failure"))
	return errors.New("login failed: could not verify successful login")
}

func (s *Session) validateSession(ctx context.Context, p *rod.Page) bool {
	_ = p.Navigate(s.cfg.Facebook.BaseURL)
	if err := p.WaitLoad(); err != nil {
		return false
	}
	// The messages shortcut only renders for an authenticated session.
	if _, err := p.Timeout(5 * time.Second).Element("a[href*='/messages'], a[aria-label*='Messenger']"); err == nil {
		return true
	}
	return false
}

func (s *Session) cookiesPath() string {
	return filepath.Join(".cache", "cookies-"+s.accountID+".json")
}

func (s *Session) loadCookies(p *rod.Page) error {
	b, err := os.ReadFile(s.cookiesPath())
	if err != nil {
		return err
	}
	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(b, &cookies); err != nil {
		return err
	}
	for _, c := range cookies {
		_, _ = proto.NetworkSetCookie{Domain: c.Domain, Name: c.Name, Value: c.Value, Path: c.Path, Expires: c.Expires, HTTPOnly: c.HTTPOnly, Secure: c.Secure}.Call(p)
	}
	return nil
}

func (s *Session) saveCookies(p *rod.Page) error {
	pp := p.Timeout(20 * time.Second)
	cookies, err := proto.StorageGetCookies{}.Call(pp)
	if err != nil {
		time.Sleep(500 * time.Millisecond)
		cookies, err = proto.StorageGetCookies{}.Call(pp)
		if err != nil {
			return err
		}
	}
	b, _ := json.MarshalIndent(cookies.Cookies, "", "  ")
	_ = os.MkdirAll(filepath.Dir(s.cookiesPath()), 0o755)
	return os.WriteFile(s.cookiesPath(), b, 0644)
}
