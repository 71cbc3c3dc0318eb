package classify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

// Assignment maps one batch position back to its record.
type Assignment struct {
	Position int      `json:"position"`
	URL      string   `json:"url"`
	Domains  []string `json:"domains"`
}

// BuildPrompt renders one request covering every item of the batch.
func BuildPrompt(vocab Vocabulary, batch Batch) string {
	var b strings.Builder
	b.WriteString("You are an AI assistant. Classify each project into these BASIC categories:\n")
	fmt.Fprintf(&b, "[%s]\n\n", strings.Join(vocab.Names(), ", "))
	b.WriteString("Return JSON of the form:\n")
	b.WriteString("{\n")
	b.WriteString(`  "results": [` + "\n")
	b.WriteString(`    {"id": 1, "domains": ["Health","AI/ML"]},` + "\n")
	b.WriteString("    ...\n")
	b.WriteString("  ]\n")
	b.WriteString("}\n\n")
	b.WriteString("Use only the listed categories. Every id refers to the numbered description below.\n\n")
	b.WriteString("Descriptions:\n")
	for _, item := range batch.Items {
		desc := strings.ReplaceAll(item.Record.Description, `"""`, `\"""`)
		fmt.Fprintf(&b, "%d) \"\"\"\n%s\n\"\"\"\n\n", item.Position, desc)
	}
	return b.String()
}

type response struct {
	Results *[]json.RawMessage `json:"results"`
}

type resultEntry struct {
	ID      *int     `json:"id"`
	Domains []string `json:"domains"`
}

var fencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// ParseResponse decodes a model reply for batch. Entries with an unknown id,
// a malformed shape, or no recognised category are dropped; when an id repeats
// the first entry wins. A body that is not JSON or lacks "results" yields
// harvest.ErrMalformedResponse.
func ParseResponse(body string, batch Batch, vocab Vocabulary) ([]Assignment, error) {
	text := strings.TrimSpace(body)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	var resp response
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("%w: decode body: %w", harvest.ErrMalformedResponse, err)
	}
	if resp.Results == nil {
		return nil, fmt.Errorf("%w: missing results", harvest.ErrMalformedResponse)
	}

	assignments := make([]Assignment, 0, len(*resp.Results))
	taken := make(map[int]struct{}, batch.Len())
	for _, raw := range *resp.Results {
		var entry resultEntry
		if err := json.Unmarshal(raw, &entry); err != nil || entry.ID == nil {
			continue
		}
		pos := *entry.ID
		if pos < 1 || pos > batch.Len() {
			continue
		}
		if _, dup := taken[pos]; dup {
			continue
		}
		domains := vocab.Normalize(entry.Domains)
		if len(domains) == 0 {
			continue
		}
		taken[pos] = struct{}{}
		assignments = append(assignments, Assignment{
			Position: pos,
			URL:      batch.Items[pos-1].Record.URL,
			Domains:  domains,
		})
	}
	return assignments, nil
}
