// Package collyfetcher implements page sessions over plain HTTP using gocolly.
// It suits server-rendered pages and local runs where no browser is installed.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
	"github.com/JakeFAU/hackathon-harvester/internal/logging"
)

// Waiter paces page loads; *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls collector behavior.
type Config struct {
	// UserAgent is sent on every request; empty rotates a random browser agent.
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
}

// Factory hands out sessions that share one pooled transport.
type Factory struct {
	cfg       Config
	limiter   Waiter
	logger    *zap.Logger
	transport http.RoundTripper
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Factory.
func New(cfg Config, limiter Waiter, logger *zap.Logger) *Factory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Factory{
		cfg:       cfg,
		limiter:   limiter,
		logger:    logging.OrNop(logger).Named("colly"),
		transport: newHTTPTransport(),
	}
}

// Open returns a session with its own collector.
func (f *Factory) Open(ctx context.Context) (harvest.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open colly session: %w", err)
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(f.transport)
	c.IgnoreRobotsTxt = !f.cfg.RespectRobots
	c.SetRequestTimeout(f.cfg.Timeout)
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	return &Session{cfg: f.cfg, limiter: f.limiter, logger: f.logger, base: c}, nil
}

// Session fetches pages one at a time.
type Session struct {
	cfg     Config
	limiter Waiter
	logger  *zap.Logger
	base    *colly.Collector

	mu     sync.Mutex
	closed bool
}

// Close marks the session unusable.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Fetch executes a single HTTP GET using Colly.
func (s *Session) Fetch(ctx context.Context, url string) (harvest.Page, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return harvest.Page{}, fmt.Errorf("%w: colly session closed", harvest.ErrFetch)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, url); err != nil {
			return harvest.Page{}, politenessError(ctx, err)
		}
	}

	var (
		result   harvest.Page
		fetchErr error
	)
	// Clone keeps settings but not callbacks, so extensions go on the clone.
	collector := s.base.Clone()
	if s.cfg.UserAgent == "" {
		extensions.RandomUserAgent(collector)
	}
	s.configureCollectorHooks(collector, time.Now(), &result, &fetchErr)
	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return harvest.Page{}, err
	}
	return result, nil
}

func (s *Session) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *harvest.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(s.cfg.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = harvest.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			HTML:       string(r.Body),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("%w: colly response %s: %w", harvest.ErrFetch, url, *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("%w: colly visit %s: %w", harvest.ErrFetch, url, err)
		}
		return nil
	}
}

func copyHeaders(headers http.Header, r *colly.Request) {
	for key, values := range headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// politenessError keeps cancellation recognisable and reports any other
// limiter failure as a fetch failure.
func politenessError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("politeness wait: %w", ctxErr)
	}
	return fmt.Errorf("%w: politeness wait: %w", harvest.ErrFetch, err)
}
