package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func testServer(t *testing.T, handler http.HandlerFunc) []option.ClientOption {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return []option.ClientOption{option.WithEndpoint(srv.URL), option.WithoutAuthentication()}
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	opts := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/pages-bucket/o")
		assert.Equal(t, "pages/abc.html", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "<html>hi</html>")
		assert.Contains(t, string(body), "text/html")
		fmt.Fprintln(w, `{"name": "pages/abc.html", "bucket": "pages-bucket"}`)
	})
	client, err := storage.NewClient(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "pages-bucket"}, nil)
	require.NoError(t, err)
	uri, err := store.PutObject(context.Background(), "pages/abc.html", "text/html", strings.NewReader("<html>hi</html>"))
	require.NoError(t, err)
	assert.Equal(t, "gs://pages-bucket/pages/abc.html", uri)
	assert.NoError(t, store.Close())
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	opts := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client, err := storage.NewClient(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "pages-bucket"}, nil)
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "pages/abc.html", "text/html", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestOpenChecksBucket(t *testing.T) {
	t.Parallel()

	opts := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/b/missing") {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"error": {"code": 404, "message": "not found"}}`)
			return
		}
		fmt.Fprintln(w, `{"name": "pages-bucket"}`)
	})

	store, err := Open(context.Background(), Config{Bucket: "pages-bucket"}, nil, opts...)
	require.NoError(t, err)
	assert.NoError(t, store.Close())

	_, err = Open(context.Background(), Config{Bucket: "missing"}, nil, opts...)
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"}, nil)
	assert.Error(t, err)
	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	_, err = New(client, Config{}, nil)
	assert.Error(t, err)
}
