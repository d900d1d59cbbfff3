package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const notificationColumns = `id, recipient, sender, type, title, message, related_idea, related_group, is_read, read_at, created_at`

func scanNotification(row rowScanner) (Notification, error) {
	var (
		n                 Notification
		readAt, createdAt timeValue
	)
	if err := row.Scan(&n.ID, &n.Recipient, &n.Sender, &n.Type, &n.Title, &n.Message,
		&n.RelatedIdea, &n.RelatedGroup, &n.IsRead, &readAt, &createdAt); err != nil {
		return Notification{}, err
	}
	n.ReadAt = readAt.ptr()
	n.CreatedAt = createdAt.Time
	return n, nil
}

func (s *SQLStore) InsertNotification(ctx context.Context, n Notification) (Notification, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	_, err := s.pool().exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, n.ID, n.Recipient, n.Sender, n.Type, n.Title, n.Message, n.RelatedIdea, n.RelatedGroup,
		n.IsRead, nullableTime(n.ReadAt), n.CreatedAt.UTC())
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns a recipient's notifications, newest first.
func (s *SQLStore) ListNotifications(ctx context.Context, recipient string, filter NotificationFilter) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient=$1`
	args := []any{recipient}
	if filter.UnreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC, seq DESC`
	if filter.Limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.pool().query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *SQLStore) CountUnread(ctx context.Context, recipient string) (int, error) {
	var count int
	err := s.pool().queryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient=$1 AND is_read = FALSE`, recipient).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkNotificationRead flags one of recipient's notifications read. The
// first read time is kept on repeated calls.
func (s *SQLStore) MarkNotificationRead(ctx context.Context, recipient, notificationID string, at time.Time) (Notification, error) {
	var out Notification
	err := s.withTx(ctx, func(r runner) error {
		if _, err := r.exec(ctx, `
			UPDATE notifications
			SET is_read = TRUE, read_at = COALESCE(read_at, $3)
			WHERE id=$1 AND recipient=$2
		`, notificationID, recipient, at.UTC()); err != nil {
			return fmt.Errorf("mark notification read: %w", err)
		}
		n, err := scanNotification(r.queryRow(ctx, `
			SELECT `+notificationColumns+` FROM notifications WHERE id=$1 AND recipient=$2
		`, notificationID, recipient))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get notification: %w", err)
		}
		out = n
		return nil
	})
	return out, err
}

// MarkAllNotificationsRead returns how many notifications changed state.
func (s *SQLStore) MarkAllNotificationsRead(ctx context.Context, recipient string, at time.Time) (int64, error) {
	result, err := s.pool().exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = $2
		WHERE recipient=$1 AND is_read = FALSE
	`, recipient, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return affected(result, "mark all read")
}

func (s *SQLStore) DeleteNotification(ctx context.Context, recipient, notificationID string) error {
	result, err := s.pool().exec(ctx, `DELETE FROM notifications WHERE id=$1 AND recipient=$2`, notificationID, recipient)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	n, err := affected(result, "delete notification")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
