package app

import (
	"context"
	"fmt"
	"strings"

	"ideaflow/api/internal/notify"
	"ideaflow/api/internal/rbac"
	"ideaflow/api/internal/realtime"
	"ideaflow/api/internal/store"
	"ideaflow/api/internal/util"
)

const (
	DecisionApproved = store.StatusApproved
	DecisionRejected = store.StatusRejected
)

type SubmitInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Domain      string   `json:"domain"`
	Tags        []string `json:"tags"`
}

// EditInput carries the fields to change; nil fields are left alone. A
// non-zero Version must match the stored version.
type EditInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Domain      *string   `json:"domain"`
	Tags        *[]string `json:"tags"`
	Version     int64     `json:"version"`
}

type ReviewInput struct {
	Decision string `json:"decision"`
	Feedback string `json:"feedback"`
}

func requiredFields(title, description, domain string) error {
	missing := make([]string, 0, 3)
	if strings.TrimSpace(title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(domain) == "" {
		missing = append(missing, "domain")
	}
	if len(missing) > 0 {
		return validationError("title, description and domain are required", map[string]any{"fields": missing})
	}
	return nil
}

// Submit creates a pending idea owned by actor and tells the reviewers.
func (s *Service) Submit(ctx context.Context, actor Actor, input SubmitInput) (store.Idea, error) {
	if err := s.authorize(actor, rbac.ActionSubmit); err != nil {
		return store.Idea{}, err
	}
	if err := requiredFields(input.Title, input.Description, input.Domain); err != nil {
		return store.Idea{}, err
	}

	idea, err := s.store.CreateIdea(ctx, store.Idea{
		ID:           util.NewID("idea"),
		Title:        strings.TrimSpace(input.Title),
		Description:  strings.TrimSpace(input.Description),
		Domain:       strings.TrimSpace(input.Domain),
		Tags:         normalizeList(input.Tags),
		Status:       store.StatusPending,
		SubmittedBy:  actor.ID,
		Contributors: []string{actor.ID},
	})
	if err != nil {
		return store.Idea{}, fmt.Errorf("create idea: %w", err)
	}
	ideaTransitions.WithLabelValues(store.StatusPending).Inc()
	s.search.IndexIdea(idea)
	s.notifyReviewers(ctx, actor, idea)
	return idea, nil
}

func (s *Service) notifyReviewers(ctx context.Context, actor Actor, idea store.Idea) {
	if s.users == nil || s.notifier == nil {
		return
	}
	reviewers, err := s.users.FindActiveByRole(ctx, string(rbac.RoleReviewer))
	if err != nil {
		s.logger.Warn("list reviewers failed", "idea_id", idea.ID, "error", err)
		return
	}
	recipients := make([]string, 0, len(reviewers))
	for _, reviewer := range reviewers {
		if reviewer.ID != actor.ID {
			recipients = append(recipients, reviewer.ID)
		}
	}
	if len(recipients) == 0 {
		return
	}
	result := s.notifier.NotifyAll(ctx, recipients, notify.Request{
		Sender:      actor.ID,
		Type:        notify.TypeSubmission,
		Title:       "New idea submitted",
		Message:     fmt.Sprintf("%s submitted %q for review", displayName(actor), idea.Title),
		RelatedIdea: idea.ID,
	})
	for recipient, ferr := range result.Failed {
		s.logger.Warn("submission notification failed", "idea_id", idea.ID, "recipient", recipient, "error", ferr)
	}
}

// Edit changes the fields of a pending idea.
func (s *Service) Edit(ctx context.Context, actor Actor, ideaID string, input EditInput) (store.Idea, error) {
	idea, err := s.loadIdea(ctx, ideaID)
	if err != nil {
		return store.Idea{}, err
	}
	if err := authorizeIdeaMutation(actor, idea); err != nil {
		return store.Idea{}, err
	}
	if input.Version != 0 && input.Version != idea.Version {
		return store.Idea{}, conflictError("Idea was modified concurrently", map[string]any{
			"ideaId":  idea.ID,
			"version": idea.Version,
		})
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

	updated, err := s.store.UpdateIdea(ctx, idea)
	if err != nil {
		return store.Idea{}, conflictOnStale(err, idea.ID)
	}
	s.search.IndexIdea(updated)
	s.broadcast(ctx, realtime.IdeaRoom(updated.ID), "idea.updated", ideaPayload(updated))
	return updated, nil
}

// Retract deletes a pending idea together with its comment log.
func (s *Service) Retract(ctx context.Context, actor Actor, ideaID string) error {
	idea, err := s.loadIdea(ctx, ideaID)
	if err != nil {
		return err
	}
	if err := authorizeIdeaMutation(actor, idea); err != nil {
		return err
	}
	if err := s.store.DeleteIdea(ctx, idea.ID, idea.Version); err != nil {
		return conflictOnStale(err, idea.ID)
	}
	s.search.DeleteIdea(idea.ID)
	s.broadcast(ctx, realtime.IdeaRoom(idea.ID), "idea.retracted", map[string]any{"id": idea.ID})
	return nil
}

// Review moves a pending idea to approved or rejected. Of two concurrent
// reviews only the first write wins; the other sees Conflict.
func (s *Service) Review(ctx context.Context, actor Actor, ideaID string, input ReviewInput) (store.Idea, error) {
	if err := s.authorize(actor, rbac.ActionReview); err != nil {
		return store.Idea{}, err
	}
	decision := strings.ToLower(strings.TrimSpace(input.Decision))
	if decision != DecisionApproved && decision != DecisionRejected {
		return store.Idea{}, validationError("decision must be approved or rejected", map[string]any{"decision": input.Decision})
	}

	idea, err := s.loadIdea(ctx, ideaID)
	if err != nil {
		return store.Idea{}, err
	}
	if idea.Status != store.StatusPending {
		return store.Idea{}, conflictError("Idea has already been decided", map[string]any{
			"ideaId": idea.ID,
			"status": idea.Status,
		})
	}

	reviewedAt := s.now()
	idea.Status = decision
	idea.Feedback = strings.TrimSpace(input.Feedback)
	idea.ReviewedBy = actor.ID
	idea.ReviewedAt = &reviewedAt

	updated, err := s.store.UpdateIdea(ctx, idea)
	if err != nil {
		return store.Idea{}, conflictOnStale(err, idea.ID)
	}
	ideaTransitions.WithLabelValues(decision).Inc()
	s.search.IndexIdea(updated)

	notificationType := notify.TypeApproved
	title := "Idea approved"
	if decision == DecisionRejected {
		notificationType = notify.TypeRejected
		title = "Idea rejected"
	}
	s.notify(ctx, notify.Request{
		Recipient:   updated.SubmittedBy,
		Sender:      actor.ID,
		Type:        notificationType,
		Title:       title,
		Message:     fmt.Sprintf("%q was %s by %s", updated.Title, decision, displayName(actor)),
		RelatedIdea: updated.ID,
	})
	s.sendStatusEmail(ctx, updated)
	s.broadcast(ctx, realtime.IdeaRoom(updated.ID), "idea.reviewed", ideaPayload(updated))
	return updated, nil
}

func (s *Service) sendStatusEmail(ctx context.Context, idea store.Idea) {
	if s.email == nil || !s.email.IsConfigured() || s.users == nil {
		return
	}
	owner, err := s.users.FindByID(ctx, idea.SubmittedBy)
	if err != nil {
		s.logger.Warn("status email skipped", "idea_id", idea.ID, "recipient", idea.SubmittedBy, "error", err)
		return
	}
	if strings.TrimSpace(owner.Email) == "" {
		return
	}
	if err := s.email.SendStatusEmail(owner.Email, idea.Title, idea.Status, idea.Feedback); err != nil {
		s.logger.Warn("status email failed", "idea_id", idea.ID, "recipient", owner.ID, "error", err)
	}
}

func (s *Service) GetIdea(ctx context.Context, actor Actor, ideaID string) (store.Idea, error) {
	if err := s.authorize(actor, rbac.ActionRead); err != nil {
		return store.Idea{}, err
	}
	return s.loadIdea(ctx, ideaID)
}

func (s *Service) ListIdeas(ctx context.Context, actor Actor, filter store.IdeaFilter) ([]store.Idea, error) {
	if err := s.authorize(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	for _, status := range filter.Statuses {
		if !validStatus(status) {
			return nil, validationError("unknown status", map[string]any{"status": status})
		}
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.store.ListIdeas(ctx, filter)
}

func validStatus(status string) bool {
	switch status {
	case store.StatusPending, store.StatusApproved, store.StatusRejected, store.StatusMerged:
		return true
	}
	return false
}

func displayName(actor Actor) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	return actor.ID
}
