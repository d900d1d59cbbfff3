package app

import (
	"context"
	"fmt"
	"strings"

	"ideaflow/api/internal/rbac"
	"ideaflow/api/internal/search"
	"ideaflow/api/internal/similarity"
	"ideaflow/api/internal/store"
)

type SimilarInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ExcludeID   string `json:"excludeId"`
}

// FindSimilar ranks open ideas against a draft title and description.
func (s *Service) FindSimilar(ctx context.Context, actor Actor, input SimilarInput) ([]similarity.Match, error) {
	if err := s.authorize(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" && strings.TrimSpace(input.Description) == "" {
		return nil, validationError("title or description is required", nil)
	}
	corpus, err := s.similarityCorpus(ctx)
	if err != nil {
		return nil, err
	}
	return similarity.FindSimilar(corpus, input.Title, input.Description, strings.TrimSpace(input.ExcludeID)), nil
}

// SuggestMerges lists open ideas that look like duplicates of ideaID.
func (s *Service) SuggestMerges(ctx context.Context, actor Actor, ideaID string) ([]similarity.Match, error) {
	if err := s.authorize(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	idea, err := s.loadIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	corpus, err := s.similarityCorpus(ctx)
	if err != nil {
		return nil, err
	}
	return similarity.FindSimilar(corpus, idea.Title, idea.Description, idea.ID), nil
}

// similarityCorpus loads every pending or approved idea in store order.
func (s *Service) similarityCorpus(ctx context.Context) ([]similarity.Document, error) {
	ideas, err := s.store.ListIdeas(ctx, store.IdeaFilter{
		Statuses: []string{store.StatusPending, store.StatusApproved},
	})
	if err != nil {
		return nil, fmt.Errorf("load similarity corpus: %w", err)
	}
	corpus := make([]similarity.Document, 0, len(ideas))
	for _, idea := range ideas {
		corpus = append(corpus, similarity.Document{
			ID:          idea.ID,
			Title:       idea.Title,
			Description: idea.Description,
			Status:      idea.Status,
		})
	}
	return corpus, nil
}

func (s *Service) SearchIdeas(ctx context.Context, actor Actor, q search.Query) (search.Response, error) {
	if err := s.authorize(actor, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{}, validationError("q is required", nil)
	}
	if q.Status != "" && !validStatus(q.Status) {
		return search.Response{}, validationError("unknown status", map[string]any{"status": q.Status})
	}
	return s.search.Search(ctx, q), nil
}
