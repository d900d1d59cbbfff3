package search

import (
	"context"

	"ideaflow/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Snippet string   `json:"snippet"`
	Domain  string   `json:"domain"`
	Status  string   `json:"status"`
	Tags    []string `json:"tags"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Status string
	Domain string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// IdeaRecord is the data we index for an idea.
type IdeaRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Domain      string   `json:"domain"`
	Tags        []string `json:"tags"`
	Status      string   `json:"status"`
	SubmittedBy string   `json:"submittedBy"`
}

func RecordFromIdea(idea store.Idea) IdeaRecord {
	tags := idea.Tags
	if tags == nil {
		tags = []string{}
	}
	return IdeaRecord{
		ID:          idea.ID,
		Title:       idea.Title,
		Description: idea.Description,
		Domain:      idea.Domain,
		Tags:        tags,
		Status:      idea.Status,
		SubmittedBy: idea.SubmittedBy,
	}
}
