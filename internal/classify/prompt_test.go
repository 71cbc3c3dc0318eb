package classify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

func TestBuildPromptListsEveryItem(t *testing.T) {
	t.Parallel()

	vocab := NewVocabulary([]string{"Health", "Web"})
	batch := NewBatches(records(3), 10)[0]
	prompt := BuildPrompt(vocab, batch)

	require.Contains(t, prompt, "[Health, Web]")
	require.Contains(t, prompt, "1) \"\"\"\nproject 1\n\"\"\"")
	require.Contains(t, prompt, "3) \"\"\"\nproject 3\n\"\"\"")
	require.Contains(t, prompt, `"results"`)
}

func TestParseResponseMapsPositions(t *testing.T) {
	t.Parallel()

	vocab := NewVocabulary(DefaultCategories())
	batch := NewBatches(records(5), 5)[0]
	body := `{"results": [{"id": 3, "domains": ["health", "ai/ml"]}, {"id": 7, "domains": ["Web"]}]}`

	got, err := ParseResponse(body, batch, vocab)
	require.NoError(t, err)
	require.Equal(t, []Assignment{{
		Position: 3,
		URL:      "https://devpost.com/software/p03",
		Domains:  []string{"Health", "AI/ML"},
	}}, got)
}

func TestParseResponseDropsBadEntries(t *testing.T) {
	t.Parallel()

	vocab := NewVocabulary(DefaultCategories())
	batch := NewBatches(records(4), 4)[0]
	body := "```json\n" + `{"results": [
		{"id": 1, "domains": ["Underwater Basket Weaving"]},
		{"id": "two", "domains": ["Web"]},
		{"domains": ["Web"]},
		{"id": 0, "domains": ["Web"]},
		{"id": 4, "domains": ["E-commerce", "Retail", "retail"]},
		{"id": 4, "domains": ["Gaming"]}
	]}` + "\n```"

	got, err := ParseResponse(body, batch, vocab)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 4, got[0].Position)
	require.Equal(t, []string{"E‑commerce", "Retail"}, got[0].Domains)
}

func TestParseResponseMalformed(t *testing.T) {
	t.Parallel()

	vocab := NewVocabulary(DefaultCategories())
	batch := NewBatches(records(2), 2)[0]
	for _, body := range []string{"", "not json", `{"items": []}`, `[1,2,3]`} {
		_, err := ParseResponse(body, batch, vocab)
		require.ErrorIs(t, err, harvest.ErrMalformedResponse, "body %q", body)
	}
}

func TestVocabularyNormalize(t *testing.T) {
	t.Parallel()

	vocab := NewVocabulary([]string{" Health ", "health", "", "AI/ML"})
	require.Equal(t, []string{"Health", "AI/ML"}, vocab.Names())
	require.Equal(t, []string{"AI/ML", "Health"}, vocab.Normalize([]string{"ai/ml", "Sports", "HEALTH", "Health"}))
	require.Empty(t, vocab.Normalize(nil))
}
