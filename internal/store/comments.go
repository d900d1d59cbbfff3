package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const commentColumns = `seq, id, idea_id, author, body, created_at, deleted_at, deleted_by`

func scanComment(row rowScanner) (Comment, error) {
	var (
		c                    Comment
		createdAt, deletedAt timeValue
	)
	if err := row.Scan(&c.Seq, &c.ID, &c.IdeaID, &c.Author, &c.Text, &createdAt, &deletedAt, &c.DeletedBy); err != nil {
		return Comment{}, err
	}
	c.CreatedAt = createdAt.Time
	c.DeletedAt = deletedAt.ptr()
	return c, nil
}

// AppendComment adds a comment to the end of an idea's log.
func (s *SQLStore) AppendComment(ctx context.Context, comment Comment) (Comment, error) {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = s.now()
	}
	err := s.withTx(ctx, func(r runner) error {
		var count int
		if err := r.queryRow(ctx, `SELECT COUNT(*) FROM ideas WHERE id=$1`, comment.IdeaID).Scan(&count); err != nil {
			return fmt.Errorf("check idea: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}
		seq, err := insertComment(ctx, r, comment)
		if err != nil {
			return err
		}
		comment.Seq = seq
		return nil
	})
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

func insertComment(ctx context.Context, r runner, c Comment) (int64, error) {
	if _, err := r.exec(ctx, `
		INSERT INTO idea_comments (id, idea_id, author, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.IdeaID, c.Author, c.Text, c.CreatedAt.UTC()); err != nil {
		return 0, fmt.Errorf("insert comment: %w", err)
	}
	var seq int64
	if err := r.queryRow(ctx, `SELECT seq FROM idea_comments WHERE idea_id=$1 AND id=$2`, c.IdeaID, c.ID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read comment seq: %w", err)
	}
	return seq, nil
}

func (s *SQLStore) GetComment(ctx context.Context, ideaID, commentID string) (Comment, error) {
	c, err := scanComment(s.pool().queryRow(ctx, `
		SELECT `+commentColumns+` FROM idea_comments WHERE idea_id=$1 AND id=$2
	`, ideaID, commentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

// ListComments returns an idea's comments in append order. Tombstoned
// entries are included only when withDeleted is set.
func (s *SQLStore) ListComments(ctx context.Context, ideaID string, withDeleted bool) ([]Comment, error) {
	return listComments(ctx, s.pool(), ideaID, withDeleted)
}

func listComments(ctx context.Context, r runner, ideaID string, withDeleted bool) ([]Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM idea_comments WHERE idea_id=$1`
	if !withDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY seq`

	rows, err := r.query(ctx, query, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// TombstoneComment marks a live comment deleted. It reports ErrNotFound
// when the comment does not exist or is already deleted.
func (s *SQLStore) TombstoneComment(ctx context.Context, ideaID, commentID, deletedBy string, at time.Time) error {
	result, err := s.pool().exec(ctx, `
		UPDATE idea_comments
		SET deleted_at=$3, deleted_by=$4
		WHERE idea_id=$1 AND id=$2 AND deleted_at IS NULL
	`, ideaID, commentID, at.UTC(), deletedBy)
	if err != nil {
		return fmt.Errorf("tombstone comment: %w", err)
	}
	n, err := affected(result, "tombstone comment")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
