package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ideaflow/api/internal/notify"
	"ideaflow/api/internal/rbac"
	"ideaflow/api/internal/realtime"
	"ideaflow/api/internal/store"
	"ideaflow/api/internal/util"
)

// MergeInput names the ideas to consolidate. Non-nil overrides replace the
// derived title, description, domain or tags.
type MergeInput struct {
	IdeaIDs     []string  `json:"ideaIds"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Domain      *string   `json:"domain"`
	Tags        *[]string `json:"tags"`
}

type MergeResult struct {
	Idea    store.Idea
	Sources []store.Idea
	History store.MergeHistory
}

// Merge consolidates two or more pending ideas into a new approved idea.
// The consolidated idea, the source transitions, the copied comments and the
// history record are written in one transaction.
func (s *Service) Merge(ctx context.Context, actor Actor, input MergeInput) (MergeResult, error) {
	if err := s.authorize(actor, rbac.ActionMerge); err != nil {
		return MergeResult{}, err
	}
	ids := normalizeList(input.IdeaIDs)
	if len(ids) < 2 {
		mergesTotal.WithLabelValues("rejected").Inc()
		return MergeResult{}, conflictError("At least two distinct ideas are required to merge", map[string]any{"ideaIds": ids})
	}

	sources := make([]store.Idea, 0, len(ids))
	for _, id := range ids {
		idea, err := s.loadIdea(ctx, id)
		if err != nil {
			mergesTotal.WithLabelValues("rejected").Inc()
			return MergeResult{}, err
		}
		if idea.Status != store.StatusPending || len(idea.MergedFrom) > 0 {
			mergesTotal.WithLabelValues("rejected").Inc()
			return MergeResult{}, conflictError("Only pending ideas can be merged", map[string]any{
				"ideaId": idea.ID,
				"status": idea.Status,
			})
		}
		sources = append(sources, idea)
	}

	consolidated, err := buildConsolidated(actor, sources, input)
	if err != nil {
		mergesTotal.WithLabelValues("rejected").Inc()
		return MergeResult{}, err
	}

	transitioned := make([]store.Idea, 0, len(sources))
	for _, source := range sources {
		source.Status = store.StatusMerged
		source.MergedInto = consolidated.ID
		source.MergedFrom = siblings(ids, source.ID)
		transitioned = append(transitioned, source)
	}

	history := store.MergeHistory{
		ID:           util.NewID("merge"),
		FinalIdea:    consolidated.ID,
		MergedIdeas:  ids,
		MergedBy:     actor.ID,
		Contributors: consolidated.Contributors,
	}

	created, history, err := s.store.ApplyMerge(ctx, store.MergePlan{
		Consolidated: consolidated,
		Sources:      transitioned,
		History:      history,
	})
	if err != nil {
		mergesTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrNotFound) {
			return MergeResult{}, conflictError("A source idea changed during the merge", map[string]any{"ideaIds": ids})
		}
		return MergeResult{}, fmt.Errorf("apply merge: %w", err)
	}
	for i := range transitioned {
		transitioned[i].Version++
		transitioned[i].UpdatedAt = created.CreatedAt
	}

	mergesTotal.WithLabelValues("applied").Inc()
	ideaTransitions.WithLabelValues(store.StatusApproved).Inc()
	ideaTransitions.WithLabelValues(store.StatusMerged).Add(float64(len(transitioned)))

	s.afterMerge(ctx, actor, created, transitioned, history)
	return MergeResult{Idea: created, Sources: transitioned, History: history}, nil
}

// afterMerge runs the secondary effects of a merge. None of them can undo it.
func (s *Service) afterMerge(ctx context.Context, actor Actor, created store.Idea, sources []store.Idea, history store.MergeHistory) {
	s.search.IndexIdea(created)
	for _, source := range sources {
		s.search.IndexIdea(source)
	}

	for _, source := range sources {
		s.notify(ctx, notify.Request{
			Recipient:   source.SubmittedBy,
			Sender:      actor.ID,
			Type:        notify.TypeMerged,
			Title:       "Idea merged",
			Message:     fmt.Sprintf("%q was merged into %q by %s", source.Title, created.Title, displayName(actor)),
			RelatedIdea: created.ID,
		})
		s.broadcast(ctx, realtime.IdeaRoom(source.ID), "idea.merged", map[string]any{
			"id":         source.ID,
			"mergedInto": created.ID,
		})
	}

	if s.archive != nil {
		key, err := s.archive.ArchiveMerge(ctx, history, created, sources)
		if err != nil {
			s.logger.Warn("merge archive failed", "merge_id", history.ID, "idea_id", created.ID, "error", err)
		} else {
			s.logger.Debug("merge archived", "merge_id", history.ID, "key", key)
		}
	}
}

func buildConsolidated(actor Actor, sources []store.Idea, input MergeInput) (store.Idea, error) {
	first := sources[0]
	descriptions := make([]string, 0, len(sources))
	var (
		ids          []string
		tags         [][]string
		contributors [][]string
		submitters   []string
	)
	for _, source := range sources {
		ids = append(ids, source.ID)
		descriptions = append(descriptions, source.Description)
		tags = append(tags, source.Tags)
		contributors = append(contributors, source.Contributors)
		submitters = append(submitters, source.SubmittedBy)
	}

	idea := store.Idea{
		ID:                 util.NewID("idea"),
		Title:              first.Title,
		Description:        strings.Join(descriptions, "\n"),
		Domain:             first.Domain,
		Tags:               unionLists(tags...),
		Status:             store.StatusApproved,
		SubmittedBy:        actor.ID,
		Contributors:       unionLists(contributors...),
		OriginalSubmitters: normalizeList(submitters),
		MergedFrom:         ids,
	}
	if input.Title != nil {
		idea.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		idea.Description = strings.TrimSpace(*input.Description)
	}
	if input.Domain != nil {
		idea.Domain = strings.TrimSpace(*input.Domain)
	}
	if input.Tags != nil {
		idea.Tags = normalizeList(*input.Tags)
	}
	if err := requiredFields(idea.Title, idea.Description, idea.Domain); err != nil {
		return store.Idea{}, err
	}
	return idea, nil
}

func siblings(ids []string, self string) []string {
	out := make([]string, 0, len(ids)-1)
	for _, id := range ids {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

// ListMergeHistory returns the merges ideaID took part in, or every merge
// when ideaID is empty.
func (s *Service) ListMergeHistory(ctx context.Context, actor Actor, ideaID string) ([]store.MergeHistory, error) {
	if err := s.authorize(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	if ideaID != "" {
		if _, err := s.loadIdea(ctx, ideaID); err != nil {
			return nil, err
		}
	}
	return s.store.ListMergeHistory(ctx, ideaID)
}
