package classify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

func records(n int) []harvest.ProjectRecord {
	out := make([]harvest.ProjectRecord, n)
	for i := range out {
		out[i] = harvest.ProjectRecord{
			URL:         fmt.Sprintf("https://devpost.com/software/p%02d", i+1),
			Description: fmt.Sprintf("project %d", i+1),
		}
	}
	return out
}

func TestChunkSizes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		n, size int
		want    []int
	}{
		{0, 5, nil},
		{5, 5, []int{5}},
		{12, 5, []int{5, 5, 2}},
		{3, 10, []int{3}},
		{3, 0, []int{1, 1, 1}},
	}
	for _, tc := range cases {
		chunks := Chunk(make([]int, tc.n), tc.size)
		var got []int
		for _, c := range chunks {
			got = append(got, len(c))
		}
		require.Equal(t, tc.want, got, "n=%d size=%d", tc.n, tc.size)
	}
}

func TestNewBatchesNumbersPositions(t *testing.T) {
	t.Parallel()

	batches := NewBatches(records(7), 3)
	require.Len(t, batches, 3)
	require.Equal(t, 1, batches[1].Items[0].Position)
	require.Equal(t, 3, batches[1].Items[2].Position)
	require.Equal(t, "https://devpost.com/software/p04", batches[1].Items[0].Record.URL)
	require.Equal(t, 1, batches[2].Len())
}
