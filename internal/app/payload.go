package app

import (
	"time"

	"ideaflow/api/internal/store"
)

func ideaPayload(idea store.Idea) map[string]any {
	comments := make([]map[string]any, 0, len(idea.Comments))
	for _, comment := range idea.Comments {
		comments = append(comments, commentPayload(comment))
	}
	out := map[string]any{
		"id":                 idea.ID,
		"title":              idea.Title,
		"description":        idea.Description,
		"domain":             idea.Domain,
		"tags":               nonNilStrings(idea.Tags),
		"status":             idea.Status,
		"submittedBy":        idea.SubmittedBy,
		"contributors":       nonNilStrings(idea.Contributors),
		"originalSubmitters": nonNilStrings(idea.OriginalSubmitters),
		"comments":           comments,
		"feedback":           idea.Feedback,
		"reviewedBy":         nilIfEmpty(idea.ReviewedBy),
		"reviewedAt":         timeOrNil(idea.ReviewedAt),
		"mergedInto":         nilIfEmpty(idea.MergedInto),
		"mergedFrom":         nonNilStrings(idea.MergedFrom),
		"version":            idea.Version,
		"createdAt":          idea.CreatedAt,
		"updatedAt":          idea.UpdatedAt,
	}
	return out
}

// ideaSummaryPayload is the list shape; comments are left out.
func ideaSummaryPayload(idea store.Idea) map[string]any {
	out := ideaPayload(idea)
	delete(out, "comments")
	return out
}

func commentPayload(comment store.Comment) map[string]any {
	return map[string]any{
		"id":        comment.ID,
		"ideaId":    comment.IdeaID,
		"author":    comment.Author,
		"text":      comment.Text,
		"createdAt": comment.CreatedAt,
	}
}

func historyPayload(h store.MergeHistory) map[string]any {
	return map[string]any{
		"id":           h.ID,
		"finalIdea":    h.FinalIdea,
		"mergedIdeas":  nonNilStrings(h.MergedIdeas),
		"mergedBy":     h.MergedBy,
		"contributors": nonNilStrings(h.Contributors),
		"createdAt":    h.CreatedAt,
	}
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func timeOrNil(value *time.Time) any {
	if value == nil {
		return nil
	}
	return *value
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func userPayload(u store.User) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"displayName": u.DisplayName,
		"email":       u.Email,
		"role":        u.Role,
		"isActive":    u.IsActive,
		"createdAt":   u.CreatedAt,
	}
}
