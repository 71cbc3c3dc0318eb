// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

// ProjectStore implements harvest.Store in memory, keeping insertion order.
type ProjectStore struct {
	mu      sync.RWMutex
	order   []string
	records map[string]harvest.ProjectRecord
}

// NewProjectStore creates an empty ProjectStore.
func NewProjectStore() *ProjectStore {
	return &ProjectStore{records: make(map[string]harvest.ProjectRecord)}
}

// Upsert inserts or replaces rec. An empty Domains keeps stored labels.
func (s *ProjectStore) Upsert(_ context.Context, rec harvest.ProjectRecord) error {
	if rec.URL == "" {
		return fmt.Errorf("%w: empty url", harvest.ErrStoreWrite)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.records[rec.URL]
	next := rec.Clone()
	if exists && len(next.Domains) == 0 {
		next.Domains = slices.Clone(prev.Domains)
	}
	if !exists {
		s.order = append(s.order, rec.URL)
	}
	s.records[rec.URL] = next
	return nil
}

// ExistingURLs returns the subset of urls already stored.
func (s *ProjectStore) ExistingURLs(_ context.Context, urls []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for _, u := range urls {
		if _, ok := s.records[u]; ok {
			out[u] = struct{}{}
		}
	}
	return out, nil
}

// FindUnclassified returns records with no domains, in insertion order.
func (s *ProjectStore) FindUnclassified(ctx context.Context) ([]harvest.ProjectRecord, error) {
	return s.List(ctx, harvest.ListFilter{UnclassifiedOnly: true})
}

// SetDomains writes labels for an existing record.
func (s *ProjectStore) SetDomains(_ context.Context, url string, domains []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[url]
	if !ok {
		return fmt.Errorf("set domains %s: %w", url, harvest.ErrNotFound)
	}
	rec.Domains = slices.Clone(domains)
	s.records[url] = rec
	return nil
}

// Get returns one record by URL.
func (s *ProjectStore) Get(_ context.Context, url string) (harvest.ProjectRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[url]
	if !ok {
		return harvest.ProjectRecord{}, fmt.Errorf("get %s: %w", url, harvest.ErrNotFound)
	}
	return rec.Clone(), nil
}

// List returns records in insertion order.
func (s *ProjectStore) List(_ context.Context, filter harvest.ListFilter) ([]harvest.ProjectRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]harvest.ProjectRecord, 0, len(s.order))
	skipped := 0
	for _, url := range s.order {
		rec := s.records[url]
		if filter.UnclassifiedOnly && rec.Classified() {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
		out = append(out, rec.Clone())
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *ProjectStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close is a no-op.
func (s *ProjectStore) Close() error { return nil }
