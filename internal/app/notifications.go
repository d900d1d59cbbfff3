package app

import (
	"context"
	"errors"

	"ideaflow/api/internal/notify"
	"ideaflow/api/internal/store"
)

func (s *Service) ListNotifications(ctx context.Context, actor Actor, filter store.NotificationFilter) (notify.Page, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.notifier.List(ctx, actor.ID, filter)
}

// MarkRead marks one of the actor's notifications read. Notifications of
// other users are reported as not found.
func (s *Service) MarkRead(ctx context.Context, actor Actor, notificationID string) (store.Notification, error) {
	n, err := s.notifier.MarkRead(ctx, actor.ID, notificationID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Notification{}, notFoundError("Notification not found", map[string]any{"notificationId": notificationID})
	}
	return n, err
}

func (s *Service) MarkAllRead(ctx context.Context, actor Actor) (int64, error) {
	return s.notifier.MarkAllRead(ctx, actor.ID)
}

func (s *Service) DeleteNotification(ctx context.Context, actor Actor, notificationID string) error {
	err := s.notifier.Delete(ctx, actor.ID, notificationID)
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError("Notification not found", map[string]any{"notificationId": notificationID})
	}
	return err
}
