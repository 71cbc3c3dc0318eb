package classify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

type scriptedModel struct {
	mu      sync.Mutex
	replies []modelReply
	prompts []string
}

type modelReply struct {
	body string
	err  error
}

func (m *scriptedModel) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if len(m.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r.body, r.err
}

func newTestClient(t *testing.T, model Model, clock *fakeClock, retry RetryPolicy) *Client {
	t.Helper()
	gate, err := NewGate(10, clock)
	require.NoError(t, err)
	client, err := NewClient(model, gate, retry, NewVocabulary(DefaultCategories()), clock, nil)
	require.NoError(t, err)
	return client
}

func TestClientClassifyOneCallPerBatch(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{replies: []modelReply{{
		body: `{"results": [{"id": 1, "domains": ["Health"]}, {"id": 2, "domains": ["Web", "Mobile"]}]}`,
	}}}
	client := newTestClient(t, model, newFakeClock(), RetryPolicy{Base: time.Second, MaxElapsed: time.Minute})

	got, err := client.Classify(context.Background(), NewBatches(records(2), 10)[0])
	require.NoError(t, err)
	require.Len(t, model.prompts, 1)
	require.Len(t, got, 2)
	require.Equal(t, "https://devpost.com/software/p02", got[1].URL)
	require.Equal(t, []string{"Web", "Mobile"}, got[1].Domains)
}

func TestClientRetriesThroughGate(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	model := &scriptedModel{replies: []modelReply{
		{err: &StatusError{Code: http.StatusTooManyRequests}},
		{body: `{"results": [{"id": 1, "domains": ["Gaming"]}]}`},
	}}
	client := newTestClient(t, model, clock, RetryPolicy{Base: time.Second, MaxElapsed: time.Minute})

	got, err := client.Classify(context.Background(), NewBatches(records(1), 10)[0])
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, model.prompts, 2)
	// backoff of 1s, then the gate tops the spacing up to 6s.
	require.Equal(t, []time.Duration{time.Second, 5 * time.Second}, clock.Sleeps())
}

func TestClientMalformedIsFatal(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{replies: []modelReply{{body: "sorry, I cannot help"}}}
	client := newTestClient(t, model, newFakeClock(), RetryPolicy{Base: time.Second, MaxElapsed: time.Minute})

	_, err := client.Classify(context.Background(), NewBatches(records(1), 10)[0])
	require.ErrorIs(t, err, harvest.ErrClassifierFatal)
	require.ErrorIs(t, err, harvest.ErrMalformedResponse)
	require.Len(t, model.prompts, 1)
}

func TestClientEmptyBatch(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{}
	client := newTestClient(t, model, newFakeClock(), RetryPolicy{})
	got, err := client.Classify(context.Background(), Batch{})
	require.NoError(t, err)
	require.Nil(t, got)
	require.Empty(t, model.prompts)
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	gate, err := NewGate(10, nil)
	require.NoError(t, err)
	_, err = NewClient(nil, gate, RetryPolicy{}, NewVocabulary(DefaultCategories()), nil, nil)
	require.Error(t, err)
	_, err = NewClient(&scriptedModel{}, gate, RetryPolicy{}, NewVocabulary(nil), nil, nil)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "vocabulary"))
}
