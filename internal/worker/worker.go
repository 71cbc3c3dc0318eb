// Package worker implements the bounded scrape pool: fetch, extract, archive, upsert.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
	"github.com/JakeFAU/hackathon-harvester/internal/hash/sha256"
	"github.com/JakeFAU/hackathon-harvester/internal/logging"
	"github.com/JakeFAU/hackathon-harvester/internal/metrics"
)

// Config controls Pool behavior.
type Config struct {
	Workers            int
	ArchivePrefix      string
	ArchiveContentType string
	Topic              string
}

// Result holds one outcome per input URL, in input order.
type Result struct {
	Outcomes  []harvest.Outcome
	Succeeded int
	Failed    int
	Skipped   int
}

// Pool scrapes a static URL list with a fixed number of workers. Each worker
// owns one session for its whole lifetime.
type Pool struct {
	factory   harvest.SessionFactory
	extractor harvest.Extractor
	store     harvest.Store
	archive   harvest.BlobStore
	publisher harvest.Publisher
	clock     harvest.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Pool. archive, publisher and clock may be nil.
func New(
	cfg Config,
	factory harvest.SessionFactory,
	extractor harvest.Extractor,
	store harvest.Store,
	archive harvest.BlobStore,
	publisher harvest.Publisher,
	clock harvest.Clock,
	logger *zap.Logger,
) (*Pool, error) {
	if factory == nil || extractor == nil || store == nil {
		return nil, errors.New("worker: session factory, extractor and store are required")
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("worker: pool size must be > 0, got %d", cfg.Workers)
	}
	if cfg.ArchiveContentType == "" {
		cfg.ArchiveContentType = "text/html; charset=utf-8"
	}
	return &Pool{
		factory:   factory,
		extractor: extractor,
		store:     store,
		archive:   archive,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logging.OrNop(logger).Named("worker"),
	}, nil
}

type runState struct {
	stop     chan struct{}
	stopOnce sync.Once
	storeErr error

	mu      sync.Mutex
	openErr error
}

func (s *runState) abort(err error) {
	s.stopOnce.Do(func() {
		s.storeErr = err
		close(s.stop)
	})
}

func (s *runState) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Run scrapes every URL. Per-URL failures are reported in the Result and never
// stop siblings. A store write failure stops workers from taking new URLs; the
// untouched ones are reported skipped and the error is returned.
func (p *Pool) Run(ctx context.Context, urls []string) (Result, error) {
	outcomes := make([]harvest.Outcome, len(urls))
	if len(urls) == 0 {
		return Result{Outcomes: outcomes}, nil
	}

	// Every URL is queued before any worker starts.
	jobs := make(chan int, len(urls))
	for i := range urls {
		jobs <- i
	}
	close(jobs)

	state := &runState{stop: make(chan struct{})}
	workers := min(p.cfg.Workers, len(urls))
	p.logger.Info("Scrape pool starting", zap.Int("urls", len(urls)), zap.Int("workers", workers))

	var wg sync.WaitGroup
	for id := range workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id, urls, jobs, outcomes, state)
		}(id)
	}
	wg.Wait()

	result := p.finish(ctx, urls, outcomes, state)
	p.logger.Info("Scrape pool finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	if state.storeErr != nil {
		return result, state.storeErr
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("scrape canceled: %w", err)
	}
	return result, nil
}

func (p *Pool) runWorker(
	ctx context.Context,
	id int,
	urls []string,
	jobs <-chan int,
	outcomes []harvest.Outcome,
	state *runState,
) {
	logger := p.logger.With(zap.Int("worker", id))
	session, err := p.factory.Open(ctx)
	if err != nil {
		logger.Error("Failed to open session", zap.Error(err))
		state.mu.Lock()
		state.openErr = err
		state.mu.Unlock()
		return
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("Failed to close session", zap.Error(cerr))
		}
	}()
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	for {
		if state.stopped() || ctx.Err() != nil {
			return
		}
		var (
			idx int
			ok  bool
		)
		select {
		case <-state.stop:
			return
		case <-ctx.Done():
			return
		case idx, ok = <-jobs:
			if !ok {
				return
			}
		}
		out := p.process(ctx, session, urls[idx], logger)
		outcomes[idx] = out
		metrics.ObservePage(string(out.Status), out.Kind)
		if errors.Is(out.Err, harvest.ErrStoreWrite) {
			logger.Error("Store write failed, aborting scrape phase", zap.String("url", out.URL), zap.Error(out.Err))
			state.abort(out.Err)
		}
	}
}

func (p *Pool) finish(ctx context.Context, urls []string, outcomes []harvest.Outcome, state *runState) Result {
	result := Result{Outcomes: outcomes}
	for i := range outcomes {
		if outcomes[i].Status == "" {
			outcomes[i] = p.untouched(ctx, urls[i], state)
			metrics.ObservePage(string(outcomes[i].Status), outcomes[i].Kind)
		}
		switch outcomes[i].Status {
		case harvest.OutcomeSucceeded:
			result.Succeeded++
		case harvest.OutcomeFailed:
			result.Failed++
		case harvest.OutcomeSkipped:
			result.Skipped++
		}
	}
	return result
}

func (p *Pool) untouched(ctx context.Context, url string, state *runState) harvest.Outcome {
	switch {
	case state.storeErr != nil:
		return harvest.Outcome{
			URL:    url,
			Status: harvest.OutcomeSkipped,
			Kind:   harvest.KindOf(state.storeErr),
			Reason: "scrape aborted after store write failure",
		}
	case ctx.Err() != nil:
		return harvest.Outcome{
			URL:    url,
			Status: harvest.OutcomeSkipped,
			Kind:   harvest.KindOf(ctx.Err()),
			Reason: "scrape canceled",
		}
	default:
		state.mu.Lock()
		openErr := state.openErr
		state.mu.Unlock()
		if openErr == nil {
			openErr = errors.New("no worker took the url")
		}
		err := fmt.Errorf("%w: no session available: %w", harvest.ErrFetch, openErr)
		return harvest.Outcome{
			URL:    url,
			Status: harvest.OutcomeFailed,
			Kind:   harvest.KindOf(err),
			Reason: err.Error(),
			Err:    err,
		}
	}
}

// process handles one URL; a panic anywhere in it becomes a failed outcome.
func (p *Pool) process(ctx context.Context, session harvest.Session, url string, logger *zap.Logger) (out harvest.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = failed(url, fmt.Errorf("panic while scraping: %v", r))
		}
		out.Duration = time.Since(start)
		if out.Status == harvest.OutcomeFailed {
			logger.Warn("Page failed",
				zap.String("url", url),
				zap.String("kind", out.Kind),
				zap.Error(out.Err),
			)
		}
	}()

	page, err := session.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil && harvest.KindOf(err) == "canceled" {
			return harvest.Outcome{URL: url, Status: harvest.OutcomeSkipped, Kind: "canceled", Reason: "scrape canceled", Err: err}
		}
		return failed(url, err)
	}

	record, err := p.extractor.Extract(page.HTML, url)
	if err != nil {
		if !errors.Is(err, harvest.ErrParse) {
			err = fmt.Errorf("%w: %w", harvest.ErrParse, err)
		}
		return failed(url, err)
	}
	record.URL = url

	archiveURI, err := p.archivePage(ctx, url, page.HTML)
	if err != nil {
		return failed(url, err)
	}

	if err := p.store.Upsert(ctx, record); err != nil {
		if !errors.Is(err, harvest.ErrStoreWrite) {
			err = fmt.Errorf("%w: upsert %s: %w", harvest.ErrStoreWrite, url, err)
		}
		return failed(url, err)
	}

	p.publish(ctx, record, archiveURI, logger)
	logger.Debug("Page stored",
		zap.String("url", url),
		zap.String("title", record.Title),
		zap.Int("team_members", len(record.TeamMembers)),
		zap.Int("built_with", len(record.BuiltWith)),
	)
	return harvest.Outcome{URL: url, Status: harvest.OutcomeSucceeded}
}

func (p *Pool) archivePage(ctx context.Context, url, html string) (string, error) {
	if p.archive == nil {
		return "", nil
	}
	path := sha256.ArchivePath(p.cfg.ArchivePrefix, url)
	uri, err := p.archive.PutObject(ctx, path, p.cfg.ArchiveContentType, strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("%w: archive page %s: %w", harvest.ErrArchive, url, err)
	}
	return uri, nil
}

// publish is best effort: the record is already durable, so failures are only logged.
func (p *Pool) publish(ctx context.Context, record harvest.ProjectRecord, archiveURI string, logger *zap.Logger) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	event := harvest.ProjectEvent{
		Type:       harvest.EventProjectScraped,
		URL:        record.URL,
		Title:      record.Title,
		ArchiveURI: archiveURI,
		Timestamp:  p.now(),
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.Topic, event); err != nil {
		logger.Warn("Failed to publish scrape event", zap.String("url", record.URL), zap.Error(err))
	}
}

func (p *Pool) now() time.Time {
	if p.clock == nil {
		return time.Now().UTC()
	}
	return p.clock.Now()
}

func failed(url string, err error) harvest.Outcome {
	return harvest.Outcome{
		URL:    url,
		Status: harvest.OutcomeFailed,
		Kind:   harvest.KindOf(err),
		Reason: err.Error(),
		Err:    err,
	}
}
