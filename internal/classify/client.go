package classify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/clock/system"
	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
	"github.com/JakeFAU/hackathon-harvester/internal/logging"
	"github.com/JakeFAU/hackathon-harvester/internal/metrics"
)

// Model is a text-in, text-out generative model. Implementations report HTTP
// failures as *StatusError so transient ones can be retried.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client classifies batches through a shared Gate with retries.
type Client struct {
	model  Model
	gate   *Gate
	retry  RetryPolicy
	vocab  Vocabulary
	clock  harvest.Clock
	logger *zap.Logger
}

// NewClient wires a Client. gate must be the process-wide Gate.
func NewClient(
	model Model,
	gate *Gate,
	retry RetryPolicy,
	vocab Vocabulary,
	clock harvest.Clock,
	logger *zap.Logger,
) (*Client, error) {
	if model == nil || gate == nil {
		return nil, errors.New("classify: model and gate are required")
	}
	if vocab.Len() == 0 {
		return nil, errors.New("classify: category vocabulary is empty")
	}
	if retry.Base <= 0 {
		retry.Base = time.Second
	}
	if clock == nil {
		clock = system.New()
	}
	return &Client{
		model:  model,
		gate:   gate,
		retry:  retry,
		vocab:  vocab,
		clock:  clock,
		logger: logging.OrNop(logger).Named("classifier"),
	}, nil
}

// Classify sends one request for the whole batch and maps the reply back to records.
func (c *Client) Classify(ctx context.Context, batch Batch) ([]Assignment, error) {
	if batch.Len() == 0 {
		return nil, nil
	}
	prompt := BuildPrompt(c.vocab, batch)

	var (
		body     string
		attempts int
	)
	err := c.retry.Do(ctx, c.clock, func(ctx context.Context) error {
		if err := c.gate.Wait(ctx); err != nil {
			return err
		}
		attempts++
		out, err := c.model.Generate(ctx, prompt)
		if err != nil {
			metrics.ObserveClassifierCall(callOutcome(err))
			c.logger.Warn("Model call failed",
				zap.Int("attempt", attempts),
				zap.Int("batch_size", batch.Len()),
				zap.Bool("retryable", IsRetryable(err)),
				zap.Error(err),
			)
			return err
		}
		metrics.ObserveClassifierCall("success")
		body = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	assignments, err := ParseResponse(body, batch, c.vocab)
	if err != nil {
		metrics.ObserveClassifierCall("malformed")
		return nil, fmt.Errorf("%w: %w", harvest.ErrClassifierFatal, err)
	}
	c.logger.Debug("Batch classified",
		zap.Int("batch_size", batch.Len()),
		zap.Int("assigned", len(assignments)),
		zap.Int("attempts", attempts),
	)
	return assignments, nil
}

func callOutcome(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return "status_" + strconv.Itoa(se.Code)
	}
	return "error"
}
