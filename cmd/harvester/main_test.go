package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/discover"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvester.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCommandsRegistered(t *testing.T) {
	t.Parallel()

	var names []string
	for _, cmd := range newCLI(&bytes.Buffer{}).Commands {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"run", "discover", "scrape", "classify", "serve"}, names)
}

func TestScrapeRequiresURL(t *testing.T) {
	t.Parallel()

	err := newCLI(&bytes.Buffer{}).Run([]string{"harvester", "scrape"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestClassifyRequiresAPIKey(t *testing.T) {
	t.Setenv("HARVESTER_CLASSIFIER_API_KEY", "")
	cfg := writeConfig(t, "store:\n  driver: memory\n")

	err := newCLI(&bytes.Buffer{}).Run([]string{"harvester", "--config", cfg, "classify"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier.api_key")
}

func TestDiscoverPrintsURLs(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/software/search" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
<a class="link-to-software" href="/software/alpha">a</a>
<a class="link-to-software" href="/software/beta">b</a>
<a class="link-to-software" href="/software/alpha">a again</a>
</body></html>`)
	}))
	defer site.Close()

	cfg := writeConfig(t, fmt.Sprintf(`source:
  origin: %s
  max_pages: 1
scrape:
  mode: static
  host_rps: 0
store:
  driver: memory
logging:
  level: error
`, site.URL))

	var out bytes.Buffer
	require.NoError(t, newCLI(&out).Run([]string{"harvester", "--config", cfg, "discover"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{site.URL + "/software/alpha", site.URL + "/software/beta"}, lines)
}

func seqOf(steps ...any) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, s := range steps {
			var ok bool
			switch v := s.(type) {
			case string:
				ok = yield(v, nil)
			case error:
				ok = yield("", v)
			}
			if !ok {
				return
			}
		}
	}
}

func TestPrintURLsSkipsPageErrors(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	urls := seqOf(
		"https://devpost.com/software/a",
		&discover.PageError{Page: 2, URL: "https://devpost.com/software/search?page=2", Err: errors.New("503")},
		"https://devpost.com/software/a",
		"https://devpost.com/software/b",
	)
	require.NoError(t, printURLs(context.Background(), &out, urls, zap.NewNop()))
	assert.Equal(t, "https://devpost.com/software/a\nhttps://devpost.com/software/b\n", out.String())
}

func TestPrintURLsReturnsSessionFailure(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	openErr := errors.New("open discovery session: no browser")
	err := printURLs(context.Background(), &out, seqOf(openErr), zap.NewNop())
	require.ErrorIs(t, err, openErr)
	assert.Empty(t, out.String())
}
