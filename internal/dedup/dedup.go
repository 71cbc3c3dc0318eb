// Package dedup filters discovered URLs down to those the store has not seen.
package dedup

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/logging"
)

// ExistenceChecker is the slice of harvest.Store the filter needs.
type ExistenceChecker interface {
	ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error)
}

// Filter consults the store's unique URL index; it keeps no seen set of its own.
type Filter struct {
	store  ExistenceChecker
	logger *zap.Logger
}

// New builds a Filter over store.
func New(store ExistenceChecker, logger *zap.Logger) (*Filter, error) {
	if store == nil {
		return nil, errors.New("dedup: store is required")
	}
	return &Filter{store: store, logger: logging.OrNop(logger).Named("dedup")}, nil
}

// Pending returns the discovered URLs absent from the store, in discovery
// order, with repeats inside discovered collapsed to their first occurrence.
func (f *Filter) Pending(ctx context.Context, discovered []string) ([]string, error) {
	unique := make([]string, 0, len(discovered))
	seen := make(map[string]struct{}, len(discovered))
	for _, u := range discovered {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}
	if len(unique) == 0 {
		return []string{}, nil
	}

	existing, err := f.store.ExistingURLs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("check existing urls: %w", err)
	}

	pending := make([]string, 0, len(unique))
	for _, u := range unique {
		if _, ok := existing[u]; !ok {
			pending = append(pending, u)
		}
	}
	f.logger.Info("Dedup filter applied",
		zap.Int("discovered", len(discovered)),
		zap.Int("unique", len(unique)),
		zap.Int("existing", len(unique)-len(pending)),
		zap.Int("pending", len(pending)),
	)
	return pending, nil
}
