package search

import (
	"context"
	"log/slog"

	"ideaflow/api/internal/store"
)

type ideaLister interface {
	ListIdeas(ctx context.Context, filter store.IdeaFilter) ([]store.Idea, error)
}

// Service is the facade that tries Meilisearch first and falls back to the
// store query.
type Service struct {
	meili    *Meili
	fallback Searcher
	logger   *slog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback Searcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{meili: meili, fallback: fallback, logger: logger}
}

// Search tries Meilisearch if healthy, otherwise falls back.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "meilisearch"}
		}
		s.logger.Warn("meilisearch error, falling back", "error", err)
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("fallback search error", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Engine: "store"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "store"}
}

// IndexIdea indexes an idea (fire-and-forget to Meilisearch).
func (s *Service) IndexIdea(idea store.Idea) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	rec := RecordFromIdea(idea)
	go func() {
		if err := s.meili.IndexIdea(rec); err != nil {
			s.logger.Warn("index idea failed", "idea_id", rec.ID, "error", err)
		}
	}()
}

// DeleteIdea removes an idea from the search index (fire-and-forget).
func (s *Service) DeleteIdea(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteIdea(id); err != nil {
			s.logger.Warn("delete idea from index failed", "idea_id", id, "error", err)
		}
	}()
}

// ReindexAll pushes every stored idea into Meilisearch.
func (s *Service) ReindexAll(ctx context.Context, lister ideaLister) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	ideas, err := lister.ListIdeas(ctx, store.IdeaFilter{})
	if err != nil {
		s.logger.Warn("reindex load failed", "error", err)
		return
	}
	records := make([]IdeaRecord, 0, len(ideas))
	for _, idea := range ideas {
		records = append(records, RecordFromIdea(idea))
	}
	if err := s.meili.IndexIdeas(records); err != nil {
		s.logger.Warn("reindex ideas failed", "error", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
