package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
	"github.com/JakeFAU/hackathon-harvester/internal/logging"
	"github.com/JakeFAU/hackathon-harvester/internal/pipeline"
)

// RunStatus is the lifecycle state of an API-triggered run.
type RunStatus string

// Run status values.
const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// ErrRunActive is returned when a run is already in progress.
var ErrRunActive = errors.New("a run is already in progress")

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (pipeline.Report, error)
}

// Run is the tracked state of one pipeline run.
type Run struct {
	ID        string           `json:"run_id"`
	Status    RunStatus        `json:"status"`
	Options   pipeline.Options `json:"options"`
	Submitted time.Time        `json:"submitted_at"`
	Started   *time.Time       `json:"started_at,omitempty"`
	Finished  *time.Time       `json:"finished_at,omitempty"`
	Report    *pipeline.Report `json:"report,omitempty"`
	ErrorText string           `json:"error,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
}

// Registry tracks runs in memory and allows one active run at a time.
type Registry struct {
	runner Runner
	ids    harvest.IDGenerator
	clock  harvest.Clock
	logger *zap.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	runs   map[string]*Run
	active string
}

// NewRegistry creates a Registry. Runs execute under a context detached from
// the submitting request and canceled by Shutdown.
func NewRegistry(runner Runner, ids harvest.IDGenerator, clock harvest.Clock, logger *zap.Logger) *Registry {
	base, cancel := context.WithCancel(context.Background())
	return &Registry{
		runner: runner,
		ids:    ids,
		clock:  clock,
		logger: logging.OrNop(logger).Named("runs"),
		base:   base,
		cancel: cancel,
		runs:   make(map[string]*Run),
	}
}

// Submit registers a run and starts it in the background.
func (r *Registry) Submit(opts pipeline.Options) (Run, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return Run{}, fmt.Errorf("generate run id: %w", err)
	}
	r.mu.Lock()
	if r.active != "" {
		r.mu.Unlock()
		return Run{}, ErrRunActive
	}
	run := &Run{ID: id, Status: RunQueued, Options: opts, Submitted: r.clock.Now()}
	r.runs[id] = run
	r.active = id
	snapshot := *run
	r.mu.Unlock()

	r.wg.Add(1)
	go r.execute(id, opts)
	return snapshot, nil
}

func (r *Registry) execute(id string, opts pipeline.Options) {
	defer r.wg.Done()
	r.update(id, func(run *Run) {
		now := r.clock.Now()
		run.Status = RunRunning
		run.Started = &now
	})
	r.logger.Info("Run started", zap.String("run_id", id), zap.String("query", opts.Query))

	report, err := r.runner.Run(r.base, opts)

	r.update(id, func(run *Run) {
		now := r.clock.Now()
		run.Finished = &now
		run.Report = &report
		if err != nil {
			run.Status = RunFailed
			run.ErrorText = err.Error()
			run.ErrorKind = harvest.KindOf(err)
			return
		}
		run.Status = RunSucceeded
	})
	r.mu.Lock()
	r.active = ""
	r.mu.Unlock()
	if err != nil {
		r.logger.Error("Run failed", zap.String("run_id", id), zap.Error(err))
		return
	}
	r.logger.Info("Run finished", zap.String("run_id", id), zap.Duration("duration", report.Duration()))
}

func (r *Registry) update(id string, fn func(*Run)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[id]; ok {
		fn(run)
	}
}

// Get returns a snapshot of the run.
func (r *Registry) Get(id string) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// Shutdown cancels active runs and waits for them or for ctx.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for runs: %w", ctx.Err())
	}
}
