package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const ideaColumns = `id, title, description, domain, tags, status, submitted_by, contributors,
	original_submitters, feedback, reviewed_by, reviewed_at, merged_into, merged_from,
	version, created_at, updated_at`

func scanIdea(row rowScanner) (Idea, error) {
	var (
		idea                                     Idea
		tags, contributors, originals, mergedFrom string
		reviewedAt, createdAt, updatedAt         timeValue
	)
	if err := row.Scan(
		&idea.ID, &idea.Title, &idea.Description, &idea.Domain, &tags, &idea.Status,
		&idea.SubmittedBy, &contributors, &originals, &idea.Feedback, &idea.ReviewedBy,
		&reviewedAt, &idea.MergedInto, &mergedFrom, &idea.Version, &createdAt, &updatedAt,
	); err != nil {
		return Idea{}, err
	}
	var err error
	if idea.Tags, err = decodeList(tags); err != nil {
		return Idea{}, err
	}
	if idea.Contributors, err = decodeList(contributors); err != nil {
		return Idea{}, err
	}
	if idea.OriginalSubmitters, err = decodeList(originals); err != nil {
		return Idea{}, err
	}
	if idea.MergedFrom, err = decodeList(mergedFrom); err != nil {
		return Idea{}, err
	}
	idea.ReviewedAt = reviewedAt.ptr()
	idea.CreatedAt = createdAt.Time
	idea.UpdatedAt = updatedAt.Time
	idea.Comments = []Comment{}
	return idea, nil
}

// CreateIdea inserts a new idea at version 1.
func (s *SQLStore) CreateIdea(ctx context.Context, idea Idea) (Idea, error) {
	idea = s.prepareNew(idea)
	if err := insertIdea(ctx, s.pool(), idea); err != nil {
		return Idea{}, err
	}
	return idea, nil
}

func (s *SQLStore) prepareNew(idea Idea) Idea {
	now := s.now()
	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = now
	}
	idea.UpdatedAt = idea.CreatedAt
	idea.Version = 1
	if idea.Comments == nil {
		idea.Comments = []Comment{}
	}
	return idea
}

func insertIdea(ctx context.Context, r runner, idea Idea) error {
	_, err := r.exec(ctx, `
		INSERT INTO ideas (`+ideaColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		idea.ID, idea.Title, idea.Description, idea.Domain, encodeList(idea.Tags), idea.Status,
		idea.SubmittedBy, encodeList(idea.Contributors), encodeList(idea.OriginalSubmitters),
		idea.Feedback, idea.ReviewedBy, nullableTime(idea.ReviewedAt), idea.MergedInto,
		encodeList(idea.MergedFrom), idea.Version, idea.CreatedAt.UTC(), idea.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert idea: %w", err)
	}
	return nil
}

// GetIdea loads an idea together with its live comments.
func (s *SQLStore) GetIdea(ctx context.Context, ideaID string) (Idea, error) {
	idea, err := getIdea(ctx, s.pool(), ideaID)
	if err != nil {
		return Idea{}, err
	}
	comments, err := listComments(ctx, s.pool(), ideaID, false)
	if err != nil {
		return Idea{}, err
	}
	idea.Comments = comments
	return idea, nil
}

func getIdea(ctx context.Context, r runner, ideaID string) (Idea, error) {
	idea, err := scanIdea(r.queryRow(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id=$1`, ideaID))
	if errors.Is(err, sql.ErrNoRows) {
		return Idea{}, ErrNotFound
	}
	if err != nil {
		return Idea{}, fmt.Errorf("get idea: %w", err)
	}
	return idea, nil
}

// ListIdeas returns ideas matching filter, newest first. Comments are not
// loaded.
func (s *SQLStore) ListIdeas(ctx context.Context, filter IdeaFilter) ([]Idea, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			marks = append(marks, arg(status))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.Domain != "" {
		where = append(where, "domain = "+arg(filter.Domain))
	}
	if filter.SubmittedBy != "" {
		where = append(where, "submitted_by = "+arg(filter.SubmittedBy))
	}
	if filter.Contributor != "" {
		where = append(where, "contributors LIKE "+arg(containsPattern(filter.Contributor))+` ESCAPE '\'`)
	}

	query := `SELECT ` + ideaColumns + ` FROM ideas`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset)
	}
	return s.queryIdeas(ctx, query, args...)
}

// SearchIdeas is a case-insensitive substring match over title, description,
// domain and tags.
func (s *SQLStore) SearchIdeas(ctx context.Context, text string, limit int) ([]Idea, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(text))) + "%"
	return s.queryIdeas(ctx, `
		SELECT `+ideaColumns+` FROM ideas
		WHERE LOWER(title) LIKE $1 ESCAPE '\'
			OR LOWER(description) LIKE $1 ESCAPE '\'
			OR LOWER(domain) LIKE $1 ESCAPE '\'
			OR LOWER(tags) LIKE $1 ESCAPE '\'
		ORDER BY updated_at DESC, id
		LIMIT $2
	`, pattern, limit)
}

func (s *SQLStore) queryIdeas(ctx context.Context, query string, args ...any) ([]Idea, error) {
	rows, err := s.pool().query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	defer rows.Close()

	items := make([]Idea, 0)
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		items = append(items, idea)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ideas: %w", err)
	}
	return items, nil
}

// UpdateIdea writes idea if its stored version still equals idea.Version and
// returns the idea at its new version.
func (s *SQLStore) UpdateIdea(ctx context.Context, idea Idea) (Idea, error) {
	idea.UpdatedAt = s.now()
	if err := updateIdea(ctx, s.pool(), idea); err != nil {
		return Idea{}, err
	}
	idea.Version++
	return idea, nil
}

func updateIdea(ctx context.Context, r runner, idea Idea) error {
	result, err := r.exec(ctx, `
		UPDATE ideas
		SET title=$3, description=$4, domain=$5, tags=$6, status=$7, contributors=$8,
			original_submitters=$9, feedback=$10, reviewed_by=$11, reviewed_at=$12,
			merged_into=$13, merged_from=$14, updated_at=$15, version=version+1
		WHERE id=$1 AND version=$2
	`,
		idea.ID, idea.Version, idea.Title, idea.Description, idea.Domain, encodeList(idea.Tags),
		idea.Status, encodeList(idea.Contributors), encodeList(idea.OriginalSubmitters),
		idea.Feedback, idea.ReviewedBy, nullableTime(idea.ReviewedAt), idea.MergedInto,
		encodeList(idea.MergedFrom), idea.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update idea: %w", err)
	}
	n, err := affected(result, "update idea")
	if err != nil {
		return err
	}
	if n == 0 {
		return missOrConflict(ctx, r, idea.ID)
	}
	return nil
}

// DeleteIdea removes an idea and its comment log if the version matches.
func (s *SQLStore) DeleteIdea(ctx context.Context, ideaID string, version int64) error {
	return s.withTx(ctx, func(r runner) error {
		result, err := r.exec(ctx, `DELETE FROM ideas WHERE id=$1 AND version=$2`, ideaID, version)
		if err != nil {
			return fmt.Errorf("delete idea: %w", err)
		}
		n, err := affected(result, "delete idea")
		if err != nil {
			return err
		}
		if n == 0 {
			return missOrConflict(ctx, r, ideaID)
		}
		if _, err := r.exec(ctx, `DELETE FROM idea_comments WHERE idea_id=$1`, ideaID); err != nil {
			return fmt.Errorf("delete idea comments: %w", err)
		}
		return nil
	})
}

func missOrConflict(ctx context.Context, r runner, ideaID string) error {
	var count int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM ideas WHERE id=$1`, ideaID).Scan(&count); err != nil {
		return fmt.Errorf("check idea: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}
