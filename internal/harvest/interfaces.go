package harvest

import (
	"context"
	"io"
	"time"
)

// Store persists project records keyed by URL.
type Store interface {
	// Upsert replaces or inserts the record by URL. An empty Domains never
	// erases previously stored domains.
	Upsert(ctx context.Context, record ProjectRecord) error
	// ExistingURLs returns the subset of urls already present in the store.
	ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error)
	// FindUnclassified returns every record whose domains are empty.
	FindUnclassified(ctx context.Context) ([]ProjectRecord, error)
	// SetDomains writes classification labels for an existing record.
	SetDomains(ctx context.Context, url string, domains []string) error
	Get(ctx context.Context, url string) (ProjectRecord, error)
	List(ctx context.Context, filter ListFilter) ([]ProjectRecord, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// ListFilter narrows List results.
type ListFilter struct {
	UnclassifiedOnly bool
	Limit            int
	Offset           int
}

// Session is a page-rendering session owned by exactly one goroutine.
type Session interface {
	Fetch(ctx context.Context, url string) (Page, error)
	Close() error
}

// SessionFactory opens isolated sessions.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// Extractor parses rendered HTML into a record.
type Extractor interface {
	Extract(html string, pageURL string) (ProjectRecord, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes record events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time and sleeps (useful for testing).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
