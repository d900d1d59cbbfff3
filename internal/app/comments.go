package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"ideaflow/api/internal/notify"
	"ideaflow/api/internal/rbac"
	"ideaflow/api/internal/realtime"
	"ideaflow/api/internal/store"
	"ideaflow/api/internal/util"
)

const maxCommentLength = 4000

// AddComment appends to an idea's comment log. Comments are accepted in any
// idea status.
func (s *Service) AddComment(ctx context.Context, actor Actor, ideaID, text string) (store.Comment, error) {
	if err := s.authorize(actor, rbac.ActionComment); err != nil {
		return store.Comment{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Comment{}, validationError("text is required", map[string]any{"fields": []string{"text"}})
	}
	if utf8.RuneCountInString(text) > maxCommentLength {
		return store.Comment{}, validationError("text is too long", map[string]any{"max": maxCommentLength})
	}

	idea, err := s.loadIdea(ctx, ideaID)
	if err != nil {
		return store.Comment{}, err
	}
	comment, err := s.store.AppendComment(ctx, store.Comment{
		ID:     util.NewID("cmt"),
		IdeaID: idea.ID,
		Author: actor.ID,
		Text:   text,
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.Comment{}, notFoundError("Idea not found", map[string]any{"ideaId": idea.ID})
	}
	if err != nil {
		return store.Comment{}, fmt.Errorf("append comment: %w", err)
	}

	if idea.SubmittedBy != actor.ID {
		s.notify(ctx, notify.Request{
			Recipient:   idea.SubmittedBy,
			Sender:      actor.ID,
			Type:        notify.TypeComment,
			Title:       "New comment",
			Message:     fmt.Sprintf("%s commented on %q", displayName(actor), idea.Title),
			RelatedIdea: idea.ID,
		})
	}
	s.broadcast(ctx, realtime.IdeaRoom(idea.ID), "comment.created", commentPayload(comment))
	return comment, nil
}

// DeleteComment tombstones a comment. Only its author or an elevated role
// may do so.
func (s *Service) DeleteComment(ctx context.Context, actor Actor, ideaID, commentID string) error {
	if err := s.authorize(actor, rbac.ActionComment); err != nil {
		return err
	}
	comment, err := s.store.GetComment(ctx, ideaID, commentID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && comment.DeletedAt != nil) {
		return notFoundError("Comment not found", map[string]any{"ideaId": ideaID, "commentId": commentID})
	}
	if err != nil {
		return err
	}
	if !rbac.CanMutate(actor.Role, actor.ID, comment.Author) {
		return forbiddenError("Only the author or an admin can delete this comment")
	}
	if err := s.store.TombstoneComment(ctx, ideaID, commentID, actor.ID, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("Comment not found", map[string]any{"ideaId": ideaID, "commentId": commentID})
		}
		return fmt.Errorf("delete comment: %w", err)
	}
	s.broadcast(ctx, realtime.IdeaRoom(ideaID), "comment.deleted", map[string]any{"ideaId": ideaID, "id": commentID})
	return nil
}

// ListComments returns the live comments of an idea in log order.
func (s *Service) ListComments(ctx context.Context, actor Actor, ideaID string) ([]store.Comment, error) {
	if err := s.authorize(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	idea, err := s.loadIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if idea.Comments == nil {
		return []store.Comment{}, nil
	}
	return idea.Comments, nil
}
