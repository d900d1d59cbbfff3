package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaflow/api/internal/logging"
	"ideaflow/api/internal/realtime"
	"ideaflow/api/internal/store"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []realtime.Message
	err  error
}

func (p *recordingPublisher) Push(_ context.Context, msg realtime.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *recordingPublisher) messages() []realtime.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.Message(nil), p.msgs...)
}

// flakyStore fails inserts for selected recipients and can stall others.
type flakyStore struct {
	Store
	failFor  map[string]bool
	stallFor map[string]bool
}

func (f *flakyStore) InsertNotification(ctx context.Context, n store.Notification) (store.Notification, error) {
	if f.failFor[n.Recipient] {
		return store.Notification{}, errors.New("disk full")
	}
	if f.stallFor[n.Recipient] {
		<-ctx.Done()
		return store.Notification{}, ctx.Err()
	}
	return f.Store.InsertNotification(ctx, n)
}

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.ApplyMigrations(ctx, db, store.DialectSQLite))
	return store.NewSQLStore(db, store.DialectSQLite)
}

func TestNotifyPersistsThenPushes(t *testing.T) {
	st := newTestStore(t)
	pub := &recordingPublisher{err: realtime.ErrNoSubscribers}
	d := NewDispatcher(st, pub, logging.Discard(), Options{})
	ctx := context.Background()

	n, err := d.Notify(ctx, Request{Recipient: "u1", Sender: "r1", Type: TypeApproved, Title: "Idea approved", Message: "Yours was approved", RelatedIdea: "i1"})
	require.NoError(t, err)
	assert.False(t, n.IsRead)

	page, err := d.List(ctx, "u1", store.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1, "notification survives a disconnected recipient")
	assert.Equal(t, 1, page.Unread)
	assert.Equal(t, "i1", page.Items[0].RelatedIdea)

	msgs := pub.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, realtime.UserRoom("u1"), msgs[0].Room)
	assert.Equal(t, EventCreated, msgs[0].Type)
	assert.Equal(t, 1, msgs[0].Data.(map[string]any)["unread"])
}

func TestNotifyRejectsInvalidRequests(t *testing.T) {
	d := NewDispatcher(newTestStore(t), nil, logging.Discard(), Options{})
	tests := []struct {
		name string
		req  Request
	}{
		{"no recipient", Request{Type: TypeSystem, Title: "t", Message: "m"}},
		{"unknown type", Request{Recipient: "u1", Type: "party", Title: "t", Message: "m"}},
		{"no title", Request{Recipient: "u1", Type: TypeSystem, Message: "m"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Notify(context.Background(), tc.req)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestNotifyAllIsolatesFailures(t *testing.T) {
	st := newTestStore(t)
	flaky := &flakyStore{
		Store:    st,
		failFor:  map[string]bool{"r2": true},
		stallFor: map[string]bool{"r4": true},
	}
	d := NewDispatcher(flaky, nil, logging.Discard(), Options{Concurrency: 2, RecipientTimeout: 50 * time.Millisecond})

	result := d.NotifyAll(context.Background(), []string{"r1", "r2", "", "r3", "r1", "r4"}, Request{
		Sender: "u1", Type: TypeSubmission, Title: "New idea", Message: "Please review", RelatedIdea: "i1",
	})

	assert.Equal(t, []string{"r1", "r3"}, result.Delivered)
	require.Len(t, result.Failed, 2)
	assert.ErrorContains(t, result.Failed["r2"], "disk full")
	assert.ErrorIs(t, result.Failed["r4"], context.DeadlineExceeded)

	for _, recipient := range []string{"r1", "r3"} {
		page, err := d.List(context.Background(), recipient, store.NotificationFilter{})
		require.NoError(t, err)
		assert.Len(t, page.Items, 1, recipient)
	}
}

func TestMarkReadAndMarkAllRead(t *testing.T) {
	st := newTestStore(t)
	pub := &recordingPublisher{}
	d := NewDispatcher(st, pub, logging.Discard(), Options{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		n, err := d.Notify(ctx, Request{Recipient: "u1", Type: TypeSystem, Title: "t", Message: "m"})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	read, err := d.MarkRead(ctx, "u1", ids[0])
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)

	_, err = d.MarkRead(ctx, "u2", ids[1])
	assert.ErrorIs(t, err, store.ErrNotFound, "other recipients cannot see the notification")

	changed, err := d.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	page, err := d.List(ctx, "u1", store.NotificationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Unread)
	for _, n := range page.Items {
		assert.True(t, n.IsRead)
		assert.NotNil(t, n.ReadAt)
	}

	msgs := pub.messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, EventUpdated, last.Type)
	assert.Equal(t, 0, last.Data.(map[string]any)["unread"])
}

func TestDeleteOnlyOwnNotification(t *testing.T) {
	st := newTestStore(t)
	d := NewDispatcher(st, nil, logging.Discard(), Options{})
	ctx := context.Background()

	n, err := d.Notify(ctx, Request{Recipient: "u1", Type: TypeSystem, Title: "t", Message: "m"})
	require.NoError(t, err)

	assert.ErrorIs(t, d.Delete(ctx, "u2", n.ID), store.ErrNotFound)
	require.NoError(t, d.Delete(ctx, "u1", n.ID))

	page, err := d.List(ctx, "u1", store.NotificationFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestPayloadOmitsEmptyReferences(t *testing.T) {
	p := Payload(store.Notification{ID: "n1", Recipient: "u1", Type: TypeSystem, Title: "t", Message: "m"})
	assert.NotContains(t, p, "relatedIdea")
	assert.NotContains(t, p, "readAt")
	assert.Equal(t, false, p["isRead"])
}
