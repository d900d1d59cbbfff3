// Package similarity scores textual overlap between idea proposals.
package similarity

import (
	"math"
	"sort"
	"strings"
)

// Threshold is the score an entry must exceed to be reported as similar.
const Threshold = 30

// Document is one candidate in a similarity corpus.
type Document struct {
	ID          string
	Title       string
	Description string
	Status      string
}

// Match is a corpus entry that scored above Threshold.
type Match struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Score  int    `json:"score"`
}

var eligibleStatuses = map[string]struct{}{
	"pending":  {},
	"approved": {},
}

// Score returns the Jaccard similarity of the whitespace token sets of a and
// b, scaled to 0-100 and rounded. Two texts without tokens score 0.
func Score(a, b string) int {
	left := tokenSet(a)
	right := tokenSet(b)
	if len(left) == 0 && len(right) == 0 {
		return 0
	}

	shared := 0
	for token := range left {
		if _, ok := right[token]; ok {
			shared++
		}
	}
	union := len(left) + len(right) - shared
	return int(math.Round(float64(shared) / float64(union) * 100))
}

// FindSimilar scores title+description against every pending or approved
// document except excludeID. Results are ordered by score, highest first;
// equal scores keep corpus order.
func FindSimilar(corpus []Document, title, description, excludeID string) []Match {
	text := Text(title, description)
	matches := make([]Match, 0)
	for _, doc := range corpus {
		if excludeID != "" && doc.ID == excludeID {
			continue
		}
		if _, ok := eligibleStatuses[doc.Status]; !ok {
			continue
		}
		score := Score(text, Text(doc.Title, doc.Description))
		if score <= Threshold {
			continue
		}
		matches = append(matches, Match{ID: doc.ID, Title: doc.Title, Status: doc.Status, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// Text joins the fields compared for an idea.
func Text(title, description string) string {
	return title + " " + description
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		set[field] = struct{}{}
	}
	return set
}
