// Package extract turns a rendered project detail page into a harvest.ProjectRecord.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

// Placeholder texts used when a page lacks the corresponding region.
const (
	DefaultTitle       = "Untitled"
	DefaultDescription = "No description available."
)

// Page selectors for project detail pages.
const (
	selectorDescription = "#app-details-left"
	selectorTeamMember  = "li.software-team-member"
	selectorProfileLink = "a.user-profile-link"
	selectorBuiltWith   = "ul.no-bullet.inline-list span.cp-tag"
	selectorHackathon   = "figure.challenge_avatar a"
)

var inspirationMarker = regexp.MustCompile(`(?i)inspiration`)

// Extractor parses detail pages. The zero value stamps records with time.Now.
type Extractor struct {
	now func() time.Time
}

// New returns an Extractor that stamps ScrapedAt from clock.
func New(clock harvest.Clock) *Extractor {
	e := &Extractor{}
	if clock != nil {
		e.now = clock.Now
	}
	return e
}

// Extract parses html fetched from pageURL.
func (e *Extractor) Extract(html string, pageURL string) (harvest.ProjectRecord, error) {
	if strings.TrimSpace(html) == "" {
		return harvest.ProjectRecord{}, fmt.Errorf("%w: empty document for %s", harvest.ErrParse, pageURL)
	}
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return harvest.ProjectRecord{}, fmt.Errorf("%w: page url %q is not absolute", harvest.ErrParse, pageURL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return harvest.ProjectRecord{}, fmt.Errorf("%w: parse %s: %w", harvest.ErrParse, pageURL, err)
	}

	return harvest.ProjectRecord{
		URL:          pageURL,
		Title:        title(doc),
		Description:  CleanFromInspiration(description(doc)),
		Domains:      []string{},
		TeamMembers:  teamMembers(doc, base),
		BuiltWith:    builtWith(doc),
		HackathonURL: hackathonURL(doc, base),
		ScrapedAt:    e.timestamp(),
	}, nil
}

func (e *Extractor) timestamp() time.Time {
	if e == nil || e.now == nil {
		return time.Now().UTC()
	}
	return e.now()
}

func title(doc *goquery.Document) string {
	h1 := doc.Find("h1").First()
	if h1.Length() == 0 {
		return DefaultTitle
	}
	if text := strings.TrimSpace(h1.Text()); text != "" {
		return text
	}
	return DefaultTitle
}

// description walks headings and paragraphs in document order. A heading
// labels every paragraph until the next heading.
func description(doc *goquery.Document) string {
	var (
		parts []string
		label string
	)
	doc.Find(selectorDescription).First().Find("h2, p").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if goquery.NodeName(s) == "h2" {
			label = text
			return
		}
		if text == "" {
			return
		}
		if label != "" {
			parts = append(parts, label+"\n"+text)
			return
		}
		parts = append(parts, text)
	})
	if len(parts) == 0 {
		return DefaultDescription
	}
	return strings.Join(parts, "\n\n")
}

// CleanFromInspiration drops everything before the first case-insensitive
// "inspiration". Text without the marker is returned trimmed.
func CleanFromInspiration(text string) string {
	loc := inspirationMarker.FindStringIndex(text)
	if loc == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[loc[0]:])
}

func teamMembers(doc *goquery.Document, base *url.URL) []harvest.TeamMember {
	members := []harvest.TeamMember{}
	seen := make(map[string]struct{})
	doc.Find(selectorTeamMember).Each(func(_ int, li *goquery.Selection) {
		// Avatar links carry no text; the first text link names the member.
		li.Find(selectorProfileLink).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			name := strings.TrimSpace(a.Text())
			if name == "" {
				return true
			}
			href, _ := a.Attr("href")
			profile := absolute(base, href)
			if _, dup := seen[profile]; dup {
				return false
			}
			seen[profile] = struct{}{}
			members = append(members, harvest.TeamMember{Name: name, ProfileURL: profile})
			return false
		})
	})
	return members
}

func builtWith(doc *goquery.Document) []string {
	tags := []string{}
	seen := make(map[string]struct{})
	doc.Find(selectorBuiltWith).Each(func(_ int, s *goquery.Selection) {
		tag := strings.TrimSpace(s.Text())
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	})
	return tags
}

func hackathonURL(doc *goquery.Document, base *url.URL) string {
	href, ok := doc.Find(selectorHackathon).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	return absolute(base, href)
}

// absolute resolves href against the page origin.
func absolute(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
