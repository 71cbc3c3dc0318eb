package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"fetch", fmt.Errorf("navigate: %w", ErrFetch), "fetch"},
		{"parse", fmt.Errorf("extract: %w", ErrParse), "parse"},
		{"store", fmt.Errorf("upsert: %w", ErrStoreWrite), "store_write"},
		{"malformed", fmt.Errorf("decode: %w", ErrMalformedResponse), "malformed_response"},
		{"fatal", fmt.Errorf("call: %w", ErrClassifierFatal), "classifier_fatal"},
		{"canceled", fmt.Errorf("wait: %w", context.Canceled), "canceled"},
		{"nav timeout", fmt.Errorf("%w: %w", ErrFetch, context.DeadlineExceeded), "fetch"},
		{"archive", fmt.Errorf("put: %w", ErrArchive), "archive"},
		{"other", errors.New("boom"), "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestProjectRecordCloneDoesNotAlias(t *testing.T) {
	t.Parallel()

	rec := ProjectRecord{
		URL:         "https://devpost.com/software/a",
		Domains:     []string{"Health"},
		BuiltWith:   []string{"go"},
		TeamMembers: []TeamMember{{Name: "Ada", ProfileURL: "https://devpost.com/ada"}},
	}
	cp := rec.Clone()
	cp.Domains[0] = "Finance"
	cp.BuiltWith[0] = "rust"
	cp.TeamMembers[0].Name = "Grace"

	require.Equal(t, "Health", rec.Domains[0])
	require.Equal(t, "go", rec.BuiltWith[0])
	require.Equal(t, "Ada", rec.TeamMembers[0].Name)
	require.True(t, rec.Classified())
	require.False(t, ProjectRecord{}.Classified())
}
