// Package storetest holds behaviour checks shared by every harvest.Store.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

// Record builds a deterministic record numbered n.
func Record(n int, domains ...string) harvest.ProjectRecord {
	return harvest.ProjectRecord{
		URL:          fmt.Sprintf("https://devpost.com/software/project-%02d", n),
		Title:        fmt.Sprintf("Project %d", n),
		Description:  fmt.Sprintf("Inspiration\nidea %d", n),
		Domains:      domains,
		TeamMembers:  []harvest.TeamMember{{Name: "Ada", ProfileURL: "https://devpost.com/ada"}},
		BuiltWith:    []string{"go", "postgres"},
		HackathonURL: "https://hack.devpost.com/",
		ScrapedAt:    time.Date(2025, 3, 1, 12, n, 0, 0, time.UTC),
	}
}

// Run exercises the harvest.Store contract against stores built by open.
func Run(t *testing.T, open func(t *testing.T) harvest.Store) {
	t.Helper()

	t.Run("UpsertIsIdempotent", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, Record(1)))
		require.NoError(t, store.Upsert(ctx, Record(1)))
		n, err := store.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		got, err := store.Get(ctx, Record(1).URL)
		require.NoError(t, err)
		want := Record(1)
		require.Equal(t, want.Title, got.Title)
		require.Equal(t, want.TeamMembers, got.TeamMembers)
		require.Equal(t, want.BuiltWith, got.BuiltWith)
		require.Equal(t, want.HackathonURL, got.HackathonURL)
		require.True(t, want.ScrapedAt.Equal(got.ScrapedAt))
	})

	t.Run("EmptyDomainsNeverErase", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, Record(1, "Health")))
		rescraped := Record(1)
		rescraped.Title = "Renamed"
		require.NoError(t, store.Upsert(ctx, rescraped))

		got, err := store.Get(ctx, rescraped.URL)
		require.NoError(t, err)
		require.Equal(t, "Renamed", got.Title)
		require.Equal(t, []string{"Health"}, got.Domains)
	})

	t.Run("ConcurrentUpsertsSameURL", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		const writers = 16
		titles := make([]string, writers)
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := range writers {
			titles[i] = fmt.Sprintf("t%d", i)
			rec := Record(1)
			rec.Title = titles[i]
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- store.Upsert(ctx, rec)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		n, err := store.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		got, err := store.Get(ctx, Record(1).URL)
		require.NoError(t, err)
		require.Contains(t, titles, got.Title)
		require.Equal(t, Record(1).BuiltWith, got.BuiltWith)
	})

	t.Run("ExistingURLs", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		for i := 1; i <= 3; i++ {
			require.NoError(t, store.Upsert(ctx, Record(i)))
		}
		got, err := store.ExistingURLs(ctx, []string{Record(2).URL, Record(7).URL, Record(3).URL})
		require.NoError(t, err)
		require.Equal(t, map[string]struct{}{Record(2).URL: {}, Record(3).URL: {}}, got)

		none, err := store.ExistingURLs(ctx, nil)
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("UnclassifiedAndSetDomains", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		require.NoError(t, store.Upsert(ctx, Record(1)))
		require.NoError(t, store.Upsert(ctx, Record(2, "Web")))
		require.NoError(t, store.Upsert(ctx, Record(3)))

		pending, err := store.FindUnclassified(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		require.Equal(t, Record(1).URL, pending[0].URL)
		require.Equal(t, Record(3).URL, pending[1].URL)

		require.NoError(t, store.SetDomains(ctx, Record(1).URL, []string{"Gaming", "AR/VR"}))
		pending, err = store.FindUnclassified(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)

		got, err := store.Get(ctx, Record(1).URL)
		require.NoError(t, err)
		require.Equal(t, []string{"Gaming", "AR/VR"}, got.Domains)

		require.ErrorIs(t, store.SetDomains(ctx, "https://missing", []string{"Web"}), harvest.ErrNotFound)
	})

	t.Run("ListPaging", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		for i := 1; i <= 5; i++ {
			require.NoError(t, store.Upsert(ctx, Record(i)))
		}
		page, err := store.List(ctx, harvest.ListFilter{Offset: 1, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page, 2)
		require.Equal(t, Record(2).URL, page[0].URL)
		require.Equal(t, Record(3).URL, page[1].URL)

		all, err := store.List(ctx, harvest.ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 5)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := open(t)
		_, err := store.Get(context.Background(), "https://missing")
		require.ErrorIs(t, err, harvest.ErrNotFound)
	})
}
