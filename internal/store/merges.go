package store

import (
	"context"
	"fmt"
)

// ApplyMerge writes a merge atomically: the consolidated idea, the copied
// comment logs, the version-checked source updates and the history record.
// Any version mismatch aborts the whole merge with ErrVersionConflict.
func (s *SQLStore) ApplyMerge(ctx context.Context, plan MergePlan) (Idea, MergeHistory, error) {
	consolidated := s.prepareNew(plan.Consolidated)
	history := plan.History
	if history.CreatedAt.IsZero() {
		history.CreatedAt = consolidated.CreatedAt
	}

	err := s.withTx(ctx, func(r runner) error {
		if err := insertIdea(ctx, r, consolidated); err != nil {
			return err
		}

		comments := make([]Comment, 0)
		for _, source := range plan.Sources {
			// Rows must be drained before the next statement on a
			// single-connection SQLite pool.
			live, err := listComments(ctx, r, source.ID, false)
			if err != nil {
				return err
			}
			for _, c := range live {
				c.IdeaID = consolidated.ID
				c.DeletedAt = nil
				c.DeletedBy = ""
				seq, err := insertComment(ctx, r, c)
				if err != nil {
					return err
				}
				c.Seq = seq
				comments = append(comments, c)
			}
		}
		consolidated.Comments = comments

		for _, source := range plan.Sources {
			source.UpdatedAt = consolidated.CreatedAt
			if err := updateIdea(ctx, r, source); err != nil {
				return fmt.Errorf("merge source %s: %w", source.ID, err)
			}
		}

		return insertMergeHistory(ctx, r, history)
	})
	if err != nil {
		return Idea{}, MergeHistory{}, err
	}
	return consolidated, history, nil
}

func insertMergeHistory(ctx context.Context, r runner, h MergeHistory) error {
	_, err := r.exec(ctx, `
		INSERT INTO merge_history (id, final_idea, merged_ideas, merged_by, contributors, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, h.ID, h.FinalIdea, encodeList(h.MergedIdeas), h.MergedBy, encodeList(h.Contributors), h.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert merge history: %w", err)
	}
	return nil
}

// ListMergeHistory returns the records an idea took part in, as the result
// or as a source, newest first. An empty ideaID lists everything.
func (s *SQLStore) ListMergeHistory(ctx context.Context, ideaID string) ([]MergeHistory, error) {
	query := `SELECT id, final_idea, merged_ideas, merged_by, contributors, created_at FROM merge_history`
	var args []any
	if ideaID != "" {
		query += ` WHERE final_idea=$1 OR merged_ideas LIKE $2 ESCAPE '\'`
		args = append(args, ideaID, containsPattern(ideaID))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.pool().query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list merge history: %w", err)
	}
	defer rows.Close()

	items := make([]MergeHistory, 0)
	for rows.Next() {
		var (
			h                    MergeHistory
			merged, contributors string
			createdAt            timeValue
		)
		if err := rows.Scan(&h.ID, &h.FinalIdea, &merged, &h.MergedBy, &contributors, &createdAt); err != nil {
			return nil, fmt.Errorf("scan merge history: %w", err)
		}
		if h.MergedIdeas, err = decodeList(merged); err != nil {
			return nil, err
		}
		if h.Contributors, err = decodeList(contributors); err != nil {
			return nil, err
		}
		h.CreatedAt = createdAt.Time
		items = append(items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merge history: %w", err)
	}
	return items, nil
}
