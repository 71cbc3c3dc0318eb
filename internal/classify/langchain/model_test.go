package langchain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hackathon-harvester/internal/classify"
	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "slow down", "type": "rate_limit"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateReturnsContent(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, http.StatusOK, `{"results": []}`)
	model, err := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})
	require.NoError(t, err)

	out, err := model.Generate(context.Background(), "classify these")
	require.NoError(t, err)
	require.Equal(t, `{"results": []}`, out)
}

func TestGenerateRateLimitedIsRetryable(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, http.StatusTooManyRequests, "")
	model, err := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})
	require.NoError(t, err)

	_, err = model.Generate(context.Background(), "classify these")
	require.Error(t, err)
	require.True(t, classify.IsRetryable(err))
	require.ErrorIs(t, err, harvest.ErrClassifierRetryable)
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	var se *classify.StatusError
	err := classifyError(errors.New("API returned unexpected status code: 503: overloaded"))
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusServiceUnavailable, se.Code)

	err = classifyError(errors.New("API returned unexpected status code: 400: bad request"))
	require.ErrorAs(t, err, &se)
	require.False(t, se.Retryable())

	err = classifyError(errors.New("connection reset"))
	require.False(t, errors.As(err, &se))
	require.ErrorContains(t, err, "connection reset")
}

func TestNewRequiresKeyAndModel(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Model: "m"})
	require.Error(t, err)
	_, err = New(Config{APIKey: "k"})
	require.Error(t, err)
}
