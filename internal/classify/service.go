package classify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
	"github.com/JakeFAU/hackathon-harvester/internal/logging"
	"github.com/JakeFAU/hackathon-harvester/internal/metrics"
)

// Classifier labels one batch; *Client satisfies it.
type Classifier interface {
	Classify(ctx context.Context, batch Batch) ([]Assignment, error)
}

// RecordStore is the slice of harvest.Store the classification pass needs.
type RecordStore interface {
	FindUnclassified(ctx context.Context) ([]harvest.ProjectRecord, error)
	SetDomains(ctx context.Context, url string, domains []string) error
}

// ServiceConfig controls a classification pass.
type ServiceConfig struct {
	BatchSize   int
	Concurrency int
	Topic       string
}

// Tally summarises one classification pass.
type Tally struct {
	Records        int `json:"records"`
	Batches        int `json:"batches"`
	BatchesFailed  int `json:"batches_failed"`
	BatchesSkipped int `json:"batches_skipped"`
	Classified     int `json:"classified"`
	Unassigned     int `json:"unassigned"`
}

// Service runs classification passes over the store.
type Service struct {
	classifier Classifier
	store      RecordStore
	publisher  harvest.Publisher
	clock      harvest.Clock
	cfg        ServiceConfig
	logger     *zap.Logger
}

// NewService wires a Service. publisher and clock may be nil.
func NewService(
	cfg ServiceConfig,
	classifier Classifier,
	store RecordStore,
	publisher harvest.Publisher,
	clock harvest.Clock,
	logger *zap.Logger,
) (*Service, error) {
	if classifier == nil || store == nil {
		return nil, errors.New("classify: classifier and store are required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("classify: batch size must be > 0, got %d", cfg.BatchSize)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Service{
		classifier: classifier,
		store:      store,
		publisher:  publisher,
		clock:      clock,
		cfg:        cfg,
		logger:     logging.OrNop(logger).Named("classify"),
	}, nil
}

type passState struct {
	mu       sync.Mutex
	tally    Tally
	storeErr error
	cancel   context.CancelFunc
}

func (s *passState) abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr == nil {
		s.storeErr = err
		s.cancel()
	}
}

// ClassifyAll labels every unclassified record. A failed batch is logged and
// counted while the others proceed; a store write failure stops the pass and
// is returned.
func (s *Service) ClassifyAll(ctx context.Context) (Tally, error) {
	records, err := s.store.FindUnclassified(ctx)
	if err != nil {
		return Tally{}, fmt.Errorf("find unclassified: %w", err)
	}
	batches := NewBatches(records, s.cfg.BatchSize)
	if len(batches) == 0 {
		s.logger.Info("Nothing to classify")
		return Tally{}, nil
	}

	pool, err := ants.NewPool(min(s.cfg.Concurrency, len(batches)))
	if err != nil {
		return Tally{}, fmt.Errorf("create classify pool: %w", err)
	}
	defer pool.Release()

	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	state := &passState{
		tally:  Tally{Records: len(records), Batches: len(batches)},
		cancel: cancel,
	}
	s.logger.Info("Classification pass starting",
		zap.Int("records", len(records)),
		zap.Int("batches", len(batches)),
	)

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			s.runBatch(passCtx, i, batch, state)
		}); err != nil {
			wg.Done()
			state.mu.Lock()
			state.tally.BatchesSkipped++
			state.mu.Unlock()
			s.logger.Error("Failed to submit batch", zap.Int("batch", i), zap.Error(err))
		}
	}
	wg.Wait()

	tally := state.tally
	s.logger.Info("Classification pass finished",
		zap.Int("classified", tally.Classified),
		zap.Int("unassigned", tally.Unassigned),
		zap.Int("batches_failed", tally.BatchesFailed),
		zap.Int("batches_skipped", tally.BatchesSkipped),
	)
	if state.storeErr != nil {
		return tally, state.storeErr
	}
	if err := ctx.Err(); err != nil {
		return tally, fmt.Errorf("classification canceled: %w", err)
	}
	return tally, nil
}

func (s *Service) runBatch(ctx context.Context, idx int, batch Batch, state *passState) {
	if ctx.Err() != nil {
		state.mu.Lock()
		state.tally.BatchesSkipped++
		state.mu.Unlock()
		return
	}
	assignments, err := s.classifier.Classify(ctx, batch)
	if err != nil {
		state.mu.Lock()
		defer state.mu.Unlock()
		if ctx.Err() != nil && harvest.KindOf(err) == "canceled" {
			state.tally.BatchesSkipped++
			return
		}
		state.tally.BatchesFailed++
		s.logger.Error("Batch classification failed",
			zap.Int("batch", idx),
			zap.Int("batch_size", batch.Len()),
			zap.String("kind", harvest.KindOf(err)),
			zap.Error(err),
		)
		return
	}

	applied, missing := 0, 0
	for _, a := range assignments {
		if err := s.store.SetDomains(ctx, a.URL, a.Domains); err != nil {
			if errors.Is(err, harvest.ErrNotFound) {
				missing++
				s.logger.Warn("Record vanished before classification was applied", zap.String("url", a.URL))
				continue
			}
			if !errors.Is(err, harvest.ErrStoreWrite) {
				err = fmt.Errorf("%w: set domains %s: %w", harvest.ErrStoreWrite, a.URL, err)
			}
			s.logger.Error("Store write failed, aborting classification", zap.String("url", a.URL), zap.Error(err))
			state.abort(err)
			break
		}
		applied++
		s.logger.Debug("Record classified", zap.String("url", a.URL), zap.Strings("domains", a.Domains))
		s.publish(ctx, a)
	}
	metrics.AddRecordsClassified(applied)

	state.mu.Lock()
	state.tally.Classified += applied
	if applied+missing == len(assignments) {
		state.tally.Unassigned += batch.Len() - len(assignments)
	}
	state.mu.Unlock()
}

func (s *Service) publish(ctx context.Context, a Assignment) {
	if s.publisher == nil || s.cfg.Topic == "" {
		return
	}
	now := time.Now().UTC()
	if s.clock != nil {
		now = s.clock.Now()
	}
	event := harvest.ProjectEvent{
		Type:      harvest.EventProjectClassified,
		URL:       a.URL,
		Domains:   a.Domains,
		Timestamp: now,
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, event); err != nil {
		s.logger.Warn("Failed to publish classify event", zap.String("url", a.URL), zap.Error(err))
	}
}
