// Package discover paginates search listing pages and yields project detail URLs.
package discover

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
	"github.com/JakeFAU/hackathon-harvester/internal/logging"
	"github.com/JakeFAU/hackathon-harvester/internal/metrics"
)

const selectorProjectLink = "a.link-to-software"

// PageError reports a listing page that could not be fetched or parsed.
// Iteration continues past it.
type PageError struct {
	Page int
	URL  string
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("listing page %d (%s): %v", e.Page, e.URL, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Discoverer walks listing pages through one session per iteration.
type Discoverer struct {
	factory harvest.SessionFactory
	origin  *url.URL
	logger  *zap.Logger
}

// New builds a Discoverer rooted at origin, e.g. https://devpost.com.
func New(factory harvest.SessionFactory, origin string, logger *zap.Logger) (*Discoverer, error) {
	if factory == nil {
		return nil, errors.New("discover: session factory is required")
	}
	u, err := url.Parse(strings.TrimRight(origin, "/"))
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("discover: origin %q must be an absolute URL", origin)
	}
	return &Discoverer{
		factory: factory,
		origin:  u,
		logger:  logging.OrNop(logger).Named("discover"),
	}, nil
}

// ListingURL returns the search results URL for a 1-based page index.
func (d *Discoverer) ListingURL(query string, page int) string {
	return d.origin.String() + "/software/search?query=" + url.QueryEscape(query) + "&page=" + strconv.Itoa(page)
}

// URLs lazily yields detail URLs from pages 1..maxPages in page order.
// Each iteration re-issues every request. A failed page yields a *PageError and
// iteration continues; context cancellation yields the context error and stops.
func (d *Discoverer) URLs(ctx context.Context, query string, maxPages int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if maxPages <= 0 {
			return
		}
		session, err := d.factory.Open(ctx)
		if err != nil {
			yield("", fmt.Errorf("open discovery session: %w", err))
			return
		}
		defer func() {
			if cerr := session.Close(); cerr != nil {
				d.logger.Warn("Failed to close discovery session", zap.Error(cerr))
			}
		}()

		for page := 1; page <= maxPages; page++ {
			if err := ctx.Err(); err != nil {
				yield("", fmt.Errorf("discover canceled: %w", err))
				return
			}
			listing := d.ListingURL(query, page)
			links, err := d.fetchLinks(ctx, session, listing)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield("", fmt.Errorf("discover canceled: %w", ctxErr))
					return
				}
				if !yield("", &PageError{Page: page, URL: listing, Err: err}) {
					return
				}
				continue
			}
			d.logger.Debug("Listing page scanned",
				zap.Int("page", page),
				zap.Int("links", len(links)),
			)
			metrics.AddDiscovered(len(links))
			for _, link := range links {
				if !yield(link, nil) {
					return
				}
			}
		}
	}
}

// Collect drains URLs into a slice. Failed pages are logged and skipped; only
// a session that cannot be opened or context cancellation returns an error.
func (d *Discoverer) Collect(ctx context.Context, query string, maxPages int) ([]string, error) {
	var urls []string
	for link, err := range d.URLs(ctx, query, maxPages) {
		if err != nil {
			var pageErr *PageError
			if errors.As(err, &pageErr) {
				d.logger.Warn("Skipping listing page",
					zap.Int("page", pageErr.Page),
					zap.String("url", pageErr.URL),
					zap.Error(pageErr.Err),
				)
				continue
			}
			return urls, err
		}
		urls = append(urls, link)
	}
	d.logger.Info("Discovery finished",
		zap.String("query", query),
		zap.Int("max_pages", maxPages),
		zap.Int("urls", len(urls)),
	)
	return urls, nil
}

func (d *Discoverer) fetchLinks(ctx context.Context, session harvest.Session, listing string) ([]string, error) {
	page, err := session.Fetch(ctx, listing)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(listing)
	if err != nil {
		return nil, fmt.Errorf("%w: listing url %q: %w", harvest.ErrParse, listing, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("%w: parse listing %s: %w", harvest.ErrParse, listing, err)
	}
	var links []string
	doc.Find(selectorProjectLink).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links, nil
}
