package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ideaflow/api/internal/realtime"
	"ideaflow/api/internal/store"
	"ideaflow/api/internal/util"
)

const (
	TypeSubmission = "submission"
	TypeApproved   = "approved"
	TypeRejected   = "rejected"
	TypeMerged     = "merged"
	TypeComment    = "comment"
	TypeSystem     = "system"

	EventCreated = "notification.created"
	EventUpdated = "notification.updated"
)

var ErrInvalid = errors.New("notify: invalid notification")

var knownTypes = map[string]bool{
	TypeSubmission: true,
	TypeApproved:   true,
	TypeRejected:   true,
	TypeMerged:     true,
	TypeComment:    true,
	TypeSystem:     true,
}

type Store interface {
	InsertNotification(ctx context.Context, n store.Notification) (store.Notification, error)
	ListNotifications(ctx context.Context, recipient string, filter store.NotificationFilter) ([]store.Notification, error)
	CountUnread(ctx context.Context, recipient string) (int, error)
	MarkNotificationRead(ctx context.Context, recipient, notificationID string, at time.Time) (store.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, recipient string, at time.Time) (int64, error)
	DeleteNotification(ctx context.Context, recipient, notificationID string) error
}

// Request describes one notification; Recipient is ignored by NotifyAll.
type Request struct {
	Recipient    string
	Sender       string
	Type         string
	Title        string
	Message      string
	RelatedIdea  string
	RelatedGroup string
}

// FanoutResult reports per-recipient outcomes of NotifyAll. Delivered keeps
// the input order.
type FanoutResult struct {
	Delivered []string
	Failed    map[string]error
}

type Page struct {
	Items  []store.Notification
	Unread int
}

type Options struct {
	Concurrency      int
	RecipientTimeout time.Duration
}

// Dispatcher persists notifications and then nudges the recipient's personal
// room. A failed or missing push never fails the call.
type Dispatcher struct {
	store     Store
	publisher realtime.Publisher
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
}

func NewDispatcher(st Store, publisher realtime.Publisher, logger *slog.Logger, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.RecipientTimeout <= 0 {
		opts.RecipientTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:     st,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func validate(req Request) error {
	switch {
	case strings.TrimSpace(req.Recipient) == "":
		return fmt.Errorf("%w: recipient is required", ErrInvalid)
	case !knownTypes[req.Type]:
		return fmt.Errorf("%w: unknown type %q", ErrInvalid, req.Type)
	case strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Message) == "":
		return fmt.Errorf("%w: title and message are required", ErrInvalid)
	}
	return nil
}

func (d *Dispatcher) Notify(ctx context.Context, req Request) (store.Notification, error) {
	if err := validate(req); err != nil {
		return store.Notification{}, err
	}

	created, err := d.store.InsertNotification(ctx, store.Notification{
		ID:           util.NewID("ntf"),
		Recipient:    req.Recipient,
		Sender:       req.Sender,
		Type:         req.Type,
		Title:        req.Title,
		Message:      req.Message,
		RelatedIdea:  req.RelatedIdea,
		RelatedGroup: req.RelatedGroup,
		CreatedAt:    d.now(),
	})
	if err != nil {
		return store.Notification{}, fmt.Errorf("persist notification: %w", err)
	}
	notificationsCreated.WithLabelValues(created.Type).Inc()

	d.push(ctx, created.Recipient, EventCreated, map[string]any{"notification": Payload(created)})
	return created, nil
}

// NotifyAll sends req to every distinct non-empty recipient with bounded
// concurrency. One recipient's failure or timeout does not affect the rest.
func (d *Dispatcher) NotifyAll(ctx context.Context, recipients []string, req Request) FanoutResult {
	started := time.Now()
	defer func() { fanoutDuration.Observe(time.Since(started).Seconds()) }()

	targets := dedupe(recipients)
	delivered := make([]bool, len(targets))
	result := FanoutResult{Delivered: []string{}, Failed: map[string]error{}}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)
	for i, recipient := range targets {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(ctx, d.opts.RecipientTimeout)
			defer cancel()

			one := req
			one.Recipient = recipient
			if _, err := d.Notify(rctx, one); err != nil {
				mu.Lock()
				result.Failed[recipient] = err
				mu.Unlock()
				fanoutFailures.Inc()
				d.logger.Warn("notification fan-out failed", "recipient", recipient, "type", req.Type, "error", err)
				return nil
			}
			delivered[i] = true
			return nil
		})
	}
	_ = g.Wait()

	for i, recipient := range targets {
		if delivered[i] {
			result.Delivered = append(result.Delivered, recipient)
		}
	}
	return result
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (d *Dispatcher) List(ctx context.Context, recipient string, filter store.NotificationFilter) (Page, error) {
	items, err := d.store.ListNotifications(ctx, recipient, filter)
	if err != nil {
		return Page{}, err
	}
	unread, err := d.store.CountUnread(ctx, recipient)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Unread: unread}, nil
}

func (d *Dispatcher) MarkRead(ctx context.Context, recipient, notificationID string) (store.Notification, error) {
	n, err := d.store.MarkNotificationRead(ctx, recipient, notificationID, d.now())
	if err != nil {
		return store.Notification{}, err
	}
	d.pushUnread(ctx, recipient, map[string]any{"id": n.ID, "isRead": true})
	return n, nil
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, recipient string) (int64, error) {
	changed, err := d.store.MarkAllNotificationsRead(ctx, recipient, d.now())
	if err != nil {
		return 0, err
	}
	d.pushUnread(ctx, recipient, map[string]any{"allRead": true})
	return changed, nil
}

func (d *Dispatcher) Delete(ctx context.Context, recipient, notificationID string) error {
	if err := d.store.DeleteNotification(ctx, recipient, notificationID); err != nil {
		return err
	}
	d.pushUnread(ctx, recipient, map[string]any{"id": notificationID, "deleted": true})
	return nil
}

func (d *Dispatcher) pushUnread(ctx context.Context, recipient string, data map[string]any) {
	unread, err := d.store.CountUnread(ctx, recipient)
	if err != nil {
		d.logger.Warn("count unread failed", "recipient", recipient, "error", err)
		return
	}
	data["unread"] = unread
	d.push(ctx, recipient, EventUpdated, data)
}

func (d *Dispatcher) push(ctx context.Context, recipient, event string, data map[string]any) {
	if d.publisher == nil {
		return
	}
	if _, ok := data["unread"]; !ok {
		if unread, err := d.store.CountUnread(ctx, recipient); err == nil {
			data["unread"] = unread
		}
	}
	err := d.publisher.Push(ctx, realtime.Message{Room: realtime.UserRoom(recipient), Type: event, Data: data})
	switch {
	case err == nil:
	case errors.Is(err, realtime.ErrNoSubscribers):
		d.logger.Debug("realtime push skipped", "recipient", recipient, "event", event)
	default:
		d.logger.Warn("realtime push failed", "recipient", recipient, "event", event, "error", err)
	}
}

// Payload is the wire shape of a notification.
func Payload(n store.Notification) map[string]any {
	out := map[string]any{
		"id":        n.ID,
		"recipient": n.Recipient,
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"isRead":    n.IsRead,
		"createdAt": n.CreatedAt,
	}
	if n.Sender != "" {
		out["sender"] = n.Sender
	}
	if n.RelatedIdea != "" {
		out["relatedIdea"] = n.RelatedIdea
	}
	if n.RelatedGroup != "" {
		out["relatedGroup"] = n.RelatedGroup
	}
	if n.ReadAt != nil {
		out["readAt"] = *n.ReadAt
	}
	return out
}
