package selector

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"aiknife/internal/models"
)

// DefaultSuggestions is how many matches Suggest returns when limit is zero.
const DefaultSuggestions = 5

// Suggest returns catalog entries whose id fuzzily matches query, best
// first. An empty query matches nothing.
func Suggest(descs []models.ModelDescriptor, query string, limit int) []models.ModelDescriptor {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultSuggestions
	}

	targets := make([]string, len(descs))
	for i, d := range descs {
		targets[i] = strings.ToLower(d.ID)
	}

	matches := fuzzy.Find(query, targets)
	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]models.ModelDescriptor, len(matches))
	for i, match := range matches {
		out[i] = descs[match.Index]
	}
	return out
}

// Contains reports whether id is an exact catalog entry.
func Contains(descs []models.ModelDescriptor, id string) bool {
	for _, d := range descs {
		if d.ID == id {
			return true
		}
	}
	return false
}
