// Package headless contains page sessions that execute JavaScript via headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
	"github.com/JakeFAU/hackathon-harvester/internal/logging"
)

// ErrSessionClosed is returned by Fetch after Close.
var ErrSessionClosed = errors.New("headless session closed")

// Waiter paces page loads; *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls the behavior of headless sessions.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is how long to let client-side scripts run after the body is ready.
	SettleDelay time.Duration
	ExecPath    string
	Headers     http.Header
}

// Factory opens one browser per session.
type Factory struct {
	cfg     Config
	limiter Waiter
	logger  *zap.Logger
}

// NewFactory creates a session factory backed by chromedp.
func NewFactory(cfg Config, limiter Waiter, logger *zap.Logger) (*Factory, error) {
	if cfg.NavigationTimeout < 0 {
		return nil, fmt.Errorf("navigation timeout must be >= 0")
	}
	if cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("settle delay must be >= 0")
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	return &Factory{
		cfg:     cfg,
		limiter: limiter,
		logger:  logging.OrNop(logger).Named("headless"),
	}, nil
}

func (f *Factory) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}
	if f.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.cfg.UserAgent))
	}
	return opts
}

// Open launches a dedicated browser. The caller must Close the session.
func (f *Factory) Open(ctx context.Context) (harvest.Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), f.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser process.
	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: start browser: %w", harvest.ErrFetch, err)
	}
	f.logger.Debug("Browser session opened")
	return &Session{
		cfg:           f.cfg,
		limiter:       f.limiter,
		logger:        f.logger,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// Session is one browser process; Fetch calls run in fresh tabs sequentially.
type Session struct {
	cfg           Config
	limiter       Waiter
	logger        *zap.Logger
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.browserCancel != nil {
			s.browserCancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
		s.logger.Debug("Browser session closed")
	})
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Fetch navigates to url and returns the rendered DOM.
func (s *Session) Fetch(ctx context.Context, url string) (harvest.Page, error) {
	if s.isClosed() {
		return harvest.Page{}, fmt.Errorf("%w: %w", harvest.ErrFetch, ErrSessionClosed)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, url); err != nil {
			return harvest.Page{}, politenessError(ctx, err)
		}
	}

	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(tabCtx, s.navTimeout())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := s.run(taskCtx, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return harvest.Page{}, fmt.Errorf("fetch %s: %w", url, ctxErr)
		}
		return harvest.Page{}, fmt.Errorf("%w: %w", harvest.ErrFetch, err)
	}

	status, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	if status >= http.StatusBadRequest {
		return harvest.Page{}, fmt.Errorf("%w: %s returned status %d", harvest.ErrFetch, url, status)
	}
	return harvest.Page{
		URL:        responseURL,
		StatusCode: status,
		HTML:       html,
		Duration:   time.Since(start),
	}, nil
}

func (s *Session) run(ctx context.Context, url string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		s.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if s.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(s.cfg.SettleDelay))
	}
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run %s: %w", url, err)
	}
	return html, finalURL, nil
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(s.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(s.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (s *Session) navTimeout() time.Duration {
	if s.cfg.NavigationTimeout > 0 {
		return s.cfg.NavigationTimeout
	}
	return 45 * time.Second
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}

// politenessError keeps cancellation recognisable and reports any other
// limiter failure as a fetch failure.
func politenessError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("politeness wait: %w", ctxErr)
	}
	return fmt.Errorf("%w: politeness wait: %w", harvest.ErrFetch, err)
}
