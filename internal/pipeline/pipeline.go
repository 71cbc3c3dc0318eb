// Package pipeline sequences discovery, dedup, scraping and classification into one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/classify"
	"github.com/JakeFAU/hackathon-harvester/internal/clock/system"
	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
	"github.com/JakeFAU/hackathon-harvester/internal/logging"
	"github.com/JakeFAU/hackathon-harvester/internal/worker"
)

// Discoverer lists candidate detail URLs.
type Discoverer interface {
	Collect(ctx context.Context, query string, maxPages int) ([]string, error)
}

// PendingFilter drops URLs the store already holds.
type PendingFilter interface {
	Pending(ctx context.Context, discovered []string) ([]string, error)
}

// Scraper fetches and stores a static URL list.
type Scraper interface {
	Run(ctx context.Context, urls []string) (worker.Result, error)
}

// Classifier labels every unclassified record.
type Classifier interface {
	ClassifyAll(ctx context.Context) (classify.Tally, error)
}

// Options selects what a run covers.
type Options struct {
	Query        string `json:"query"`
	MaxPages     int    `json:"max_pages"`
	SkipClassify bool   `json:"skip_classify"`
}

// ScrapeSummary counts scrape outcomes.
type ScrapeSummary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Report tallies one run. Partial failures show up here, not as errors.
type Report struct {
	Query          string            `json:"query,omitempty"`
	Discovered     int               `json:"discovered"`
	AlreadyStored  int               `json:"already_stored"`
	Pending        int               `json:"pending"`
	Scrape         ScrapeSummary     `json:"scrape"`
	Classification *classify.Tally   `json:"classification,omitempty"`
	Outcomes       []harvest.Outcome `json:"outcomes,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
}

// Duration returns the wall time of the run.
func (r Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Orchestrator drives one pipeline run end to end.
type Orchestrator struct {
	discoverer Discoverer
	filter     PendingFilter
	scraper    Scraper
	classifier Classifier
	clock      harvest.Clock
	logger     *zap.Logger
}

// New wires an Orchestrator. classifier may be nil, in which case runs stop
// after scraping.
func New(
	discoverer Discoverer,
	filter PendingFilter,
	scraper Scraper,
	classifier Classifier,
	clock harvest.Clock,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if discoverer == nil || filter == nil || scraper == nil {
		return nil, errors.New("pipeline: discoverer, filter and scraper are required")
	}
	if clock == nil {
		clock = system.New()
	}
	return &Orchestrator{
		discoverer: discoverer,
		filter:     filter,
		scraper:    scraper,
		classifier: classifier,
		clock:      clock,
		logger:     logging.OrNop(logger).Named("pipeline"),
	}, nil
}

// Run discovers, filters already-stored URLs, scrapes the rest and classifies
// whatever is still unlabelled. Only a store write failure or cancellation is
// returned as an error; the report is filled as far as the run got.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Report, error) {
	report := Report{Query: opts.Query, StartedAt: o.clock.Now()}

	discovered, err := o.discoverer.Collect(ctx, opts.Query, opts.MaxPages)
	report.Discovered = len(discovered)
	if err != nil {
		return o.finish(report), fmt.Errorf("discover: %w", err)
	}

	pending, err := o.filter.Pending(ctx, discovered)
	if err != nil {
		return o.finish(report), fmt.Errorf("filter stored urls: %w", err)
	}
	report.Pending = len(pending)
	report.AlreadyStored = uniqueCount(discovered) - len(pending)
	o.logger.Info("Pending URLs selected",
		zap.Int("discovered", report.Discovered),
		zap.Int("already_stored", report.AlreadyStored),
		zap.Int("pending", report.Pending),
	)

	if err := o.scrapeInto(ctx, pending, &report); err != nil {
		return o.finish(report), err
	}
	if opts.SkipClassify {
		return o.finish(report), nil
	}
	if err := o.classifyInto(ctx, &report); err != nil {
		return o.finish(report), err
	}
	return o.finish(report), nil
}

// Scrape fetches urls directly. Unless force is set, stored URLs are skipped.
func (o *Orchestrator) Scrape(ctx context.Context, urls []string, force bool) (Report, error) {
	report := Report{StartedAt: o.clock.Now(), Discovered: len(urls)}
	pending := urls
	if !force {
		var err error
		pending, err = o.filter.Pending(ctx, urls)
		if err != nil {
			return o.finish(report), fmt.Errorf("filter stored urls: %w", err)
		}
		report.AlreadyStored = uniqueCount(urls) - len(pending)
	}
	report.Pending = len(pending)
	err := o.scrapeInto(ctx, pending, &report)
	return o.finish(report), err
}

// Classify runs one classification pass.
func (o *Orchestrator) Classify(ctx context.Context) (Report, error) {
	report := Report{StartedAt: o.clock.Now()}
	err := o.classifyInto(ctx, &report)
	return o.finish(report), err
}

func (o *Orchestrator) scrapeInto(ctx context.Context, urls []string, report *Report) error {
	result, err := o.scraper.Run(ctx, urls)
	report.Outcomes = result.Outcomes
	report.Scrape = ScrapeSummary{
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Skipped:   result.Skipped,
	}
	o.logger.Info("Scrape phase finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	if err != nil {
		o.logger.Error("Scrape phase aborted", zap.String("kind", harvest.KindOf(err)), zap.Error(err))
		return fmt.Errorf("scrape: %w", err)
	}
	return nil
}

func (o *Orchestrator) classifyInto(ctx context.Context, report *Report) error {
	if o.classifier == nil {
		o.logger.Warn("Classifier not configured, skipping classification")
		return nil
	}
	tally, err := o.classifier.ClassifyAll(ctx)
	report.Classification = &tally
	if err != nil {
		o.logger.Error("Classification aborted", zap.String("kind", harvest.KindOf(err)), zap.Error(err))
		return fmt.Errorf("classify: %w", err)
	}
	return nil
}

func (o *Orchestrator) finish(report Report) Report {
	report.FinishedAt = o.clock.Now()
	return report
}

func uniqueCount(urls []string) int {
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if u != "" {
			seen[u] = struct{}{}
		}
	}
	return len(seen)
}
