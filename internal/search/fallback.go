package search

import (
	"context"
	"strings"

	"ideaflow/api/internal/store"
)

type ideaSearcher interface {
	SearchIdeas(ctx context.Context, text string, limit int) ([]store.Idea, error)
}

// StoreSearch implements Searcher with a substring query on the idea store.
type StoreSearch struct {
	store ideaSearcher
}

func NewStoreSearch(st ideaSearcher) *StoreSearch {
	return &StoreSearch{store: st}
}

// Healthy always returns true; if the store is down, the whole app is down.
func (s *StoreSearch) Healthy() bool {
	return true
}

func (s *StoreSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	ideas, err := s.store.SearchIdeas(ctx, q.Text, limit+offset)
	if err != nil {
		return nil, 0, err
	}

	results := make([]Result, 0, len(ideas))
	for _, idea := range ideas {
		if q.Status != "" && idea.Status != q.Status {
			continue
		}
		if q.Domain != "" && idea.Domain != q.Domain {
			continue
		}
		results = append(results, Result{
			ID:      idea.ID,
			Title:   idea.Title,
			Snippet: snippet(idea.Description, 160),
			Domain:  idea.Domain,
			Status:  idea.Status,
			Tags:    nonNilStrings(idea.Tags),
		})
	}
	total := len(results)
	if offset >= len(results) {
		return []Result{}, total, nil
	}
	return results[offset:], total, nil
}

func snippet(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
