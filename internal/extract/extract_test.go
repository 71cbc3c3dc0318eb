package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

const detailPage = `<!doctype html>
<html><body>
<header><h1>  MediMate  </h1></header>
<div id="app-details-left">
  <p>Devpost navigation preamble</p>
  <h2>Inspiration</h2>
  <p>Clinics lose track of patients.</p>
  <h2>What it does</h2>
  <p>Sends reminders.</p>
  <p></p>
  <p>Tracks refills.</p>
  <div><h2>Built with</h2><p>Go and <b>Postgres</b></p></div>
</div>
<ul class="no-bullet inline-list">
  <li><span class="cp-tag"> go </span></li>
  <li><span class="cp-tag">postgresql</span></li>
  <li><span class="cp-tag">go</span></li>
  <li><span class="cp-tag">  </span></li>
</ul>
<ul>
  <li class="software-team-member">
    <a class="user-profile-link" href="/ada"><img src="a.png"></a>
    <a class="user-profile-link" href="/ada">Ada Lovelace</a>
  </li>
  <li class="software-team-member">
    <a class="user-profile-link" href="https://devpost.com/grace">Grace Hopper</a>
    <a class="user-profile-link" href="/ignored">Second link</a>
  </li>
  <li class="software-team-member">
    <a class="user-profile-link" href="/ada">Ada again</a>
  </li>
  <li class="software-team-member">
    <a class="user-profile-link" href="/avatar-only"><img src="x.png"></a>
  </li>
</ul>
<figure class="challenge_avatar"><a href="/hackathons/healthhacks"><img></a></figure>
</body></html>`

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }
func (c fixedClock) Sleep(context.Context, time.Duration) error { return nil }

func TestExtractDetailPage(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	rec, err := New(fixedClock{t: at}).Extract(detailPage, "https://devpost.com/software/medimate")
	require.NoError(t, err)

	assert.Equal(t, "https://devpost.com/software/medimate", rec.URL)
	assert.Equal(t, "MediMate", rec.Title)
	assert.Equal(t,
		"Inspiration\nClinics lose track of patients.\n\n"+
			"What it does\nSends reminders.\n\n"+
			"What it does\nTracks refills.\n\n"+
			"Built with\nGo and Postgres",
		rec.Description)
	assert.Empty(t, rec.Domains)
	assert.NotNil(t, rec.Domains)
	assert.Equal(t, []string{"go", "postgresql"}, rec.BuiltWith)
	assert.Equal(t, []harvest.TeamMember{
		{Name: "Ada Lovelace", ProfileURL: "https://devpost.com/ada"},
		{Name: "Grace Hopper", ProfileURL: "https://devpost.com/grace"},
	}, rec.TeamMembers)
	assert.Equal(t, "https://devpost.com/hackathons/healthhacks", rec.HackathonURL)
	assert.Equal(t, at, rec.ScrapedAt)
}

func TestExtractDefaults(t *testing.T) {
	t.Parallel()

	rec, err := New(nil).Extract(`<html><body><div>nothing here</div></body></html>`, "https://devpost.com/software/empty")
	require.NoError(t, err)

	assert.Equal(t, DefaultTitle, rec.Title)
	assert.Equal(t, DefaultDescription, rec.Description)
	assert.Empty(t, rec.TeamMembers)
	assert.Empty(t, rec.BuiltWith)
	assert.Empty(t, rec.HackathonURL)
	assert.False(t, rec.ScrapedAt.IsZero())
}

func TestExtractDescriptionWithoutMarker(t *testing.T) {
	t.Parallel()

	html := `<html><body><h1>Tool</h1><div id="app-details-left"><p>First.</p><h2>How</h2><p>Second.</p></div></body></html>`
	rec, err := New(nil).Extract(html, "https://devpost.com/software/tool")
	require.NoError(t, err)
	assert.Equal(t, "First.\n\nHow\nSecond.", rec.Description)
}

func TestExtractErrors(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Extract("   ", "https://devpost.com/software/x")
	require.ErrorIs(t, err, harvest.ErrParse)

	_, err = New(nil).Extract(detailPage, "/software/x")
	require.ErrorIs(t, err, harvest.ErrParse)
}

func TestCleanFromInspiration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"drops preamble", "Menu\nLogin\nINSPIRATION\nWe wanted to help", "INSPIRATION\nWe wanted to help"},
		{"first occurrence wins", "intro Inspiration one inspiration two", "Inspiration one inspiration two"},
		{"mid-word marker", "Our inspirational story", "inspirational story"},
		{"no marker keeps text", "  What it does\nThings  ", "What it does\nThings"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, CleanFromInspiration(tc.in))
		})
	}
}
