package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

func page(status int, html string) harvest.Page {
	return harvest.Page{URL: "https://devpost.test/software/x", StatusCode: status, HTML: html}
}

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(page(200, "  \n")))
}

func TestHeuristic_ShouldPromote_SPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(page(200, `<div id="__next"></div>`)))
	require.True(t, h.ShouldPromote(page(200, `<div data-reactroot=""></div>`)))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	require.True(t, h.ShouldPromote(page(200, `<html><script>var a=1;</script><p>t</p></html>`)))
	require.True(t, h.ShouldPromote(page(200, `<html><p>t</p><script src="x.js">`)))
}

func TestHeuristic_ShouldPromote_MissingRequiredMarkup(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(10, `id="app-details-left"`, `class="link-to-software"`)
	served := `<html><body><h1>P</h1><div id="app-details-left"><p>x</p></div></body></html>`
	shell := `<html><body><h1>Loading</h1><div class="spinner"></div></body></html>`
	require.False(t, h.ShouldPromote(page(200, served)))
	require.True(t, h.ShouldPromote(page(200, shell)))
}

func TestHeuristic_ShouldPromote_ServerRenderedPage(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)
	body := "<html><body><h1>Project</h1>" + strings.Repeat("<p>text</p>", 300) + "</body></html>"
	require.False(t, h.ShouldPromote(page(200, body)))
	require.Equal(t, 2048, h.BodyLengthThreshold)
}

func TestHeuristic_ShouldPromote_DisabledForNon200(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.ShouldPromote(page(404, "not found")))
}
