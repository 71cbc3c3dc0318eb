package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

func rec(n int, domains ...string) harvest.ProjectRecord {
	return harvest.ProjectRecord{
		URL:     fmt.Sprintf("https://devpost.com/software/p%d", n),
		Title:   fmt.Sprintf("Project %d", n),
		Domains: domains,
	}
}

func TestProjectStoreUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewProjectStore()
	require.NoError(t, store.Upsert(ctx, rec(1)))
	require.NoError(t, store.Upsert(ctx, rec(1)))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestProjectStoreUpsertKeepsDomains(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewProjectStore()
	require.NoError(t, store.Upsert(ctx, rec(1, "Health")))

	updated := rec(1)
	updated.Title = "Renamed"
	require.NoError(t, store.Upsert(ctx, updated))

	got, err := store.Get(ctx, updated.URL)
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Title)
	require.Equal(t, []string{"Health"}, got.Domains)

	require.NoError(t, store.Upsert(ctx, rec(1, "Web")))
	got, err = store.Get(ctx, updated.URL)
	require.NoError(t, err)
	require.Equal(t, []string{"Web"}, got.Domains)
}

func TestProjectStoreExistingAndUnclassified(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewProjectStore()
	for i := 1; i <= 4; i++ {
		var domains []string
		if i%2 == 0 {
			domains = []string{"Web"}
		}
		require.NoError(t, store.Upsert(ctx, rec(i, domains...)))
	}

	existing, err := store.ExistingURLs(ctx, []string{rec(1).URL, rec(9).URL, rec(4).URL})
	require.NoError(t, err)
	require.Len(t, existing, 2)
	require.Contains(t, existing, rec(4).URL)

	pending, err := store.FindUnclassified(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, rec(1).URL, pending[0].URL)
	require.Equal(t, rec(3).URL, pending[1].URL)

	require.NoError(t, store.SetDomains(ctx, rec(3).URL, []string{"Gaming"}))
	pending, err = store.FindUnclassified(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestProjectStoreListPaging(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewProjectStore()
	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Upsert(ctx, rec(i)))
	}
	page, err := store.List(ctx, harvest.ListFilter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, rec(2).URL, page[0].URL)
	require.Equal(t, rec(3).URL, page[1].URL)
}

func TestProjectStoreNotFoundAndAliasing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewProjectStore()
	_, err := store.Get(ctx, "https://nope")
	require.ErrorIs(t, err, harvest.ErrNotFound)
	require.ErrorIs(t, store.SetDomains(ctx, "https://nope", []string{"Web"}), harvest.ErrNotFound)
	require.ErrorIs(t, store.Upsert(ctx, harvest.ProjectRecord{}), harvest.ErrStoreWrite)

	r := rec(1, "Health")
	require.NoError(t, store.Upsert(ctx, r))
	r.Domains[0] = "Finance"
	got, err := store.Get(ctx, r.URL)
	require.NoError(t, err)
	require.Equal(t, "Health", got.Domains[0])
}
