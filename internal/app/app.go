// Package app builds the harvester's long-lived services from configuration
// and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/api"
	"github.com/JakeFAU/hackathon-harvester/internal/classify"
	"github.com/JakeFAU/hackathon-harvester/internal/classify/langchain"
	"github.com/JakeFAU/hackathon-harvester/internal/clock/system"
	"github.com/JakeFAU/hackathon-harvester/internal/config"
	"github.com/JakeFAU/hackathon-harvester/internal/dedup"
	"github.com/JakeFAU/hackathon-harvester/internal/discover"
	"github.com/JakeFAU/hackathon-harvester/internal/extract"
	autofetcher "github.com/JakeFAU/hackathon-harvester/internal/fetcher/auto"
	collyfetcher "github.com/JakeFAU/hackathon-harvester/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/hackathon-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
	"github.com/JakeFAU/hackathon-harvester/internal/headless/detector"
	"github.com/JakeFAU/hackathon-harvester/internal/id/uuid"
	"github.com/JakeFAU/hackathon-harvester/internal/logging"
	"github.com/JakeFAU/hackathon-harvester/internal/pipeline"
	"github.com/JakeFAU/hackathon-harvester/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/hackathon-harvester/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/hackathon-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/hackathon-harvester/internal/storage/gcs"
	"github.com/JakeFAU/hackathon-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/hackathon-harvester/internal/storage/memory"
	"github.com/JakeFAU/hackathon-harvester/internal/storage/postgres"
	"github.com/JakeFAU/hackathon-harvester/internal/storage/sqlite"
	"github.com/JakeFAU/hackathon-harvester/internal/worker"
)

// pageMarkers is markup every server-rendered listing or detail page carries.
var pageMarkers = []string{"link-to-software", "app-details-left"}

// Overrides replaces externally backed components. Zero fields use the
// configured implementation.
type Overrides struct {
	Sessions harvest.SessionFactory
	Model    classify.Model
	Clock    harvest.Clock
}

// App holds the shared services for one process.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  harvest.Clock

	store      harvest.Store
	archive    harvest.BlobStore
	publisher  harvest.Publisher
	discoverer *discover.Discoverer
	pipeline   *pipeline.Orchestrator
	runs       *api.Registry
	server     *api.Server

	closers []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New wires every component. The classifier is only built when an API key or
// a model override is present; without it runs stop after scraping.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, ov Overrides) (*App, error) {
	logger = logging.OrNop(logger)
	a := &App{cfg: cfg, logger: logger, clock: ov.Clock}
	if a.clock == nil {
		a.clock = system.New()
	}
	logger.Info("Initializing application services")

	if err := a.build(ctx, ov); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("Application services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("archive", cfg.Archive.Driver),
		zap.String("events", cfg.Events.Driver),
		zap.String("mode", cfg.Scrape.Mode),
	)
	return a, nil
}

func (a *App) build(ctx context.Context, ov Overrides) error {
	var err error
	if a.store, err = a.openStore(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	if a.archive, err = a.openArchive(ctx); err != nil {
		return fmt.Errorf("init archive: %w", err)
	}
	if a.publisher, err = a.openPublisher(ctx); err != nil {
		return fmt.Errorf("init events: %w", err)
	}

	sessions := ov.Sessions
	if sessions == nil {
		if sessions, err = a.sessionFactory(); err != nil {
			return fmt.Errorf("init fetcher: %w", err)
		}
	}

	if a.discoverer, err = discover.New(sessions, a.cfg.Source.Origin, a.logger); err != nil {
		return fmt.Errorf("init discoverer: %w", err)
	}
	filter, err := dedup.New(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("init dedup: %w", err)
	}
	pool, err := worker.New(
		worker.Config{
			Workers:       a.cfg.Scrape.Workers,
			ArchivePrefix: a.cfg.Archive.Prefix,
			Topic:         a.cfg.Events.Topic,
		},
		sessions,
		extract.New(a.clock),
		a.store,
		a.archive,
		a.publisher,
		a.clock,
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("init worker pool: %w", err)
	}

	classifier, err := a.classifier(ov.Model)
	if err != nil {
		return fmt.Errorf("init classifier: %w", err)
	}
	if a.pipeline, err = pipeline.New(a.discoverer, filter, pool, classifier, a.clock, a.logger); err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	a.runs = api.NewRegistry(a.pipeline, uuid.New(), a.clock, a.logger)
	a.server = api.NewServer(a.store, a.runs, api.Config{
		APIKey:          a.cfg.Server.APIKey,
		RequestTimeout:  a.cfg.Server.RequestTimeout,
		DefaultQuery:    a.cfg.Source.Query,
		DefaultMaxPages: a.cfg.Source.MaxPages,
	}, a.logger)
	return nil
}

func (a *App) openStore(ctx context.Context) (harvest.Store, error) {
	var (
		store harvest.Store
		err   error
	)
	switch a.cfg.Store.Driver {
	case "postgres":
		store, err = postgres.New(ctx, postgres.Config{
			DSN:      a.cfg.Store.DSN,
			Table:    a.cfg.Store.Table,
			MaxConns: a.cfg.Store.MaxConns,
		})
	case "sqlite":
		store, err = sqlite.Open(ctx, sqlite.Config{DSN: a.cfg.Store.DSN, Table: a.cfg.Store.Table})
	case "memory":
		a.logger.Warn("Using in-memory project store; records are lost on exit")
		store = memorystorage.NewProjectStore()
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, namedCloser{"store", store})
	return store, nil
}

func (a *App) openArchive(ctx context.Context) (harvest.BlobStore, error) {
	switch a.cfg.Archive.Driver {
	case "none", "":
		return nil, nil
	case "memory":
		return memorystorage.NewBlobStore(), nil
	case "local":
		return local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
	case "gcs":
		blobs, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Archive.Bucket}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, namedCloser{"archive", blobs})
		return blobs, nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", a.cfg.Archive.Driver)
	}
}

func (a *App) openPublisher(ctx context.Context) (harvest.Publisher, error) {
	switch a.cfg.Events.Driver {
	case "none", "":
		return nil, nil
	case "memory":
		return memorypublisher.New(), nil
	case "pubsub":
		pub, err := pubsubpublisher.New(ctx, a.cfg.Events.ProjectID, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, namedCloser{"events", pub})
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", a.cfg.Events.Driver)
	}
}

func (a *App) sessionFactory() (harvest.SessionFactory, error) {
	limiter := ratelimit.New(ratelimit.Config{
		HostRPS:   a.cfg.Scrape.HostRPS,
		HostBurst: a.cfg.Scrape.HostBurst,
	})
	static := func() harvest.SessionFactory {
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:     a.cfg.Scrape.UserAgent,
			RespectRobots: true,
			Timeout:       a.cfg.Scrape.NavTimeout,
		}, limiter, a.logger)
	}
	headless := func() (harvest.SessionFactory, error) {
		return headlessfetcher.NewFactory(headlessfetcher.Config{
			UserAgent:         a.cfg.Scrape.UserAgent,
			NavigationTimeout: a.cfg.Scrape.NavTimeout,
			SettleDelay:       a.cfg.Scrape.SettleDelay,
			ExecPath:          a.cfg.Scrape.ExecPath,
		}, limiter, a.logger)
	}
	switch a.cfg.Scrape.Mode {
	case "static":
		return static(), nil
	case "headless":
		return headless()
	case "auto":
		browser, err := headless()
		if err != nil {
			return nil, err
		}
		heuristic := detector.NewHeuristic(a.cfg.Scrape.PromotionThreshold, pageMarkers...)
		return autofetcher.New(static(), browser, heuristic, a.logger)
	default:
		return nil, fmt.Errorf("unknown scrape mode %q", a.cfg.Scrape.Mode)
	}
}

// classifier returns nil, nil when no credentials are configured.
func (a *App) classifier(model classify.Model) (pipeline.Classifier, error) {
	cc := a.cfg.Classifier
	if model == nil {
		if a.cfg.RequireClassifierCredentials() != nil {
			a.logger.Warn("Classifier API key not set; classification disabled")
			return nil, nil
		}
		m, err := langchain.New(langchain.Config{BaseURL: cc.BaseURL, APIKey: cc.APIKey, Model: cc.Model})
		if err != nil {
			return nil, err
		}
		model = m
	}
	gate, err := classify.NewGate(cc.CallsPerMinute, a.clock)
	if err != nil {
		return nil, err
	}
	client, err := classify.NewClient(
		model,
		gate,
		classify.RetryPolicy{Base: cc.BackoffBase, MaxElapsed: cc.MaxRetryElapsed},
		classify.NewVocabulary(cc.Categories),
		a.clock,
		a.logger,
	)
	if err != nil {
		return nil, err
	}
	service, err := classify.NewService(classify.ServiceConfig{
		BatchSize:   cc.BatchSize,
		Concurrency: cc.Concurrency,
		Topic:       a.cfg.Events.Topic,
	}, client, a.store, a.publisher, a.clock, a.logger)
	if err != nil {
		return nil, err
	}
	return service, nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the project store.
func (a *App) Store() harvest.Store { return a.store }

// Pipeline returns the orchestrator driving discovery, scraping and classification.
func (a *App) Pipeline() *pipeline.Orchestrator { return a.pipeline }

// Discoverer returns the listing walker.
func (a *App) Discoverer() *discover.Discoverer { return a.discoverer }

// Publisher returns the event publisher, or nil when events are disabled.
func (a *App) Publisher() harvest.Publisher { return a.publisher }

// Archive returns the raw page archive, or nil when archiving is disabled.
func (a *App) Archive() harvest.BlobStore { return a.archive }

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Serve listens on the configured port until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener serves the API on ln, then shuts the server and any active
// run down within the configured shutdown timeout once ctx is canceled.
func (a *App) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	if err := a.runs.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	a.logger.Info("Shutdown complete")
	return errors.Join(errs...)
}

// Close releases every owned resource in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.c.Close(); err != nil {
			a.logger.Warn("Error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	// Sync fails on stderr-backed loggers on some platforms; nothing to do about it.
	_ = a.logger.Sync()
}
