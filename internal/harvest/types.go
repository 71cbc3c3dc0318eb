// Package harvest defines the core types shared across the ingestion and enrichment pipeline.
package harvest

import (
	"time"
)

// TeamMember is one contributor listed on a project page.
type TeamMember struct {
	Name       string `json:"name"`
	ProfileURL string `json:"profile_url"`
}

// ProjectRecord is the structured form of one project detail page.
// URL is the only stable identifier.
type ProjectRecord struct {
	URL          string       `json:"url"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Domains      []string     `json:"domains"`
	TeamMembers  []TeamMember `json:"team_members"`
	BuiltWith    []string     `json:"built_with"`
	HackathonURL string       `json:"hackathon,omitempty"`
	ScrapedAt    time.Time    `json:"scraped_at"`
}

// Classified reports whether the record already carries domain labels.
func (r ProjectRecord) Classified() bool {
	return len(r.Domains) > 0
}

// Clone returns a deep copy so callers cannot alias stored slices.
func (r ProjectRecord) Clone() ProjectRecord {
	cp := r
	cp.Domains = cloneStrings(r.Domains)
	cp.BuiltWith = cloneStrings(r.BuiltWith)
	if r.TeamMembers != nil {
		cp.TeamMembers = make([]TeamMember, len(r.TeamMembers))
		copy(cp.TeamMembers, r.TeamMembers)
	}
	return cp
}

// Page is the rendered markup returned by a Session.
type Page struct {
	URL        string
	StatusCode int
	HTML       string
	Duration   time.Duration
}

// OutcomeStatus is the per-URL result of the scrape phase.
type OutcomeStatus string

// Outcome status values reported by the worker pool.
const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// Outcome reports what happened to one URL.
type Outcome struct {
	URL      string        `json:"url"`
	Status   OutcomeStatus `json:"status"`
	Kind     string        `json:"kind,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Event payload types published after store writes.
const (
	EventProjectScraped    = "project.scraped"
	EventProjectClassified = "project.classified"
)

// ProjectEvent is the payload published to the events topic.
type ProjectEvent struct {
	Type       string    `json:"type"`
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	Domains    []string  `json:"domains,omitempty"`
	ArchiveURI string    `json:"archive_uri,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}
