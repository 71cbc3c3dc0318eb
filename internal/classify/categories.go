package classify

import "strings"

var defaultCategories = []string{
	"Health", "Finance", "Education", "Environment", "AI/ML",
	"Robotics", "Mobile", "Web", "IoT & Embedded", "E‑commerce",
	"Data Analytics", "Cybersecurity", "Gaming", "AR/VR",
	"Transportation", "Agriculture", "Manufacturing", "Retail",
	"Media & Entertainment", "Social Impact", "Other",
}

// DefaultCategories returns a copy of the built-in category vocabulary.
func DefaultCategories() []string {
	return append([]string(nil), defaultCategories...)
}

// Vocabulary is a fixed, ordered category list with case-insensitive lookup.
type Vocabulary struct {
	names []string
	index map[string]string
}

// NewVocabulary builds a Vocabulary, dropping blanks and repeats.
func NewVocabulary(categories []string) Vocabulary {
	v := Vocabulary{index: make(map[string]string, len(categories))}
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		key := foldKey(c)
		if _, dup := v.index[key]; dup {
			continue
		}
		v.index[key] = c
		v.names = append(v.names, c)
	}
	return v
}

// Names returns the categories in their configured order.
func (v Vocabulary) Names() []string {
	return append([]string(nil), v.names...)
}

// Len reports the number of categories.
func (v Vocabulary) Len() int { return len(v.names) }

// Normalize maps raw labels to canonical categories, dropping unknown labels
// and repeats while keeping first-seen order.
func (v Vocabulary) Normalize(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		name, ok := v.index[foldKey(r)]
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// foldKey lowercases and treats the ASCII hyphen and its non-breaking variant alike,
// since models often echo "E-commerce" for "E‑commerce".
func foldKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "‑", "-")
}
