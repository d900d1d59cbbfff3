package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, ApplyMigrations(ctx, db, DialectSQLite))
	return NewSQLStore(db, DialectSQLite)
}

func pendingIdea(id, owner string) Idea {
	return Idea{
		ID:           id,
		Title:        "Solar panels on roofs",
		Description:  "Install solar panels on campus roofs",
		Domain:       "energy",
		Tags:         []string{"solar", "campus"},
		Status:       StatusPending,
		SubmittedBy:  owner,
		Contributors: []string{owner},
	}
}

func TestCreateAndGetIdea(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateIdea(ctx, pendingIdea("idea_1", "u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	got, err := s.GetIdea(ctx, "idea_1")
	require.NoError(t, err)
	assert.Equal(t, "Solar panels on roofs", got.Title)
	assert.Equal(t, []string{"solar", "campus"}, got.Tags)
	assert.Equal(t, []string{"u1"}, got.Contributors)
	assert.Empty(t, got.MergedFrom)
	assert.Empty(t, got.Comments)
	assert.Nil(t, got.ReviewedAt)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = s.GetIdea(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateIdeaRejectsStaleVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateIdea(ctx, pendingIdea("idea_1", "u1"))
	require.NoError(t, err)

	first := created
	first.Status = StatusApproved
	first.ReviewedBy = "r1"
	now := time.Now().UTC()
	first.ReviewedAt = &now
	updated, err := s.UpdateIdea(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	stale := created
	stale.Status = StatusRejected
	_, err = s.UpdateIdea(ctx, stale)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := s.GetIdea(ctx, "idea_1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.Equal(t, "r1", got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)

	ghost := pendingIdea("ghost", "u1")
	ghost.Version = 1
	_, err = s.UpdateIdea(ctx, ghost)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListIdeasFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := pendingIdea("a", "u1")
	b := pendingIdea("b", "u2")
	b.Domain = "water"
	b.Contributors = []string{"u2", "u3"}
	c := pendingIdea("c", "u3")
	c.Status = StatusRejected
	for _, idea := range []Idea{a, b, c} {
		_, err := s.CreateIdea(ctx, idea)
		require.NoError(t, err)
	}

	pending, err := s.ListIdeas(ctx, IdeaFilter{Statuses: []string{StatusPending}})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	water, err := s.ListIdeas(ctx, IdeaFilter{Domain: "water"})
	require.NoError(t, err)
	require.Len(t, water, 1)
	assert.Equal(t, "b", water[0].ID)

	byContributor, err := s.ListIdeas(ctx, IdeaFilter{Contributor: "u3"})
	require.NoError(t, err)
	ids := make([]string, 0, len(byContributor))
	for _, idea := range byContributor {
		ids = append(ids, idea.ID)
	}
	assert.ElementsMatch(t, []string{"b", "c"}, ids)

	limited, err := s.ListIdeas(ctx, IdeaFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSearchIdeasMatchesSubstring(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateIdea(ctx, pendingIdea("a", "u1"))
	require.NoError(t, err)
	other := pendingIdea("b", "u2")
	other.Title = "Rainwater tanks"
	other.Description = "Collect rain"
	other.Domain = "water"
	other.Tags = nil
	_, err = s.CreateIdea(ctx, other)
	require.NoError(t, err)

	hits, err := s.SearchIdeas(ctx, "SOLAR", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)

	none, err := s.SearchIdeas(ctx, "100%", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteIdeaChecksVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateIdea(ctx, pendingIdea("a", "u1"))
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteIdea(ctx, "a", 7), ErrVersionConflict)
	require.NoError(t, s.DeleteIdea(ctx, "a", 1))
	assert.ErrorIs(t, s.DeleteIdea(ctx, "a", 1), ErrNotFound)
}

func TestCommentLogAppendAndTombstone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateIdea(ctx, pendingIdea("a", "u1"))
	require.NoError(t, err)

	first, err := s.AppendComment(ctx, Comment{ID: "c1", IdeaID: "a", Author: "u1", Text: "first"})
	require.NoError(t, err)
	second, err := s.AppendComment(ctx, Comment{ID: "c2", IdeaID: "a", Author: "u2", Text: "second"})
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)

	_, err = s.AppendComment(ctx, Comment{ID: "c3", IdeaID: "missing", Author: "u1", Text: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.TombstoneComment(ctx, "a", "c1", "u1", time.Now()))
	assert.ErrorIs(t, s.TombstoneComment(ctx, "a", "c1", "u1", time.Now()), ErrNotFound)

	live, err := s.ListComments(ctx, "a", false)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "c2", live[0].ID)

	all, err := s.ListComments(ctx, "a", true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].DeletedAt)
	assert.Equal(t, "u1", all[0].DeletedBy)

	got, err := s.GetIdea(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "second", got.Comments[0].Text)
}

func TestApplyMergeIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateIdea(ctx, pendingIdea("a", "u1"))
	require.NoError(t, err)
	b, err := s.CreateIdea(ctx, pendingIdea("b", "u2"))
	require.NoError(t, err)
	_, err = s.AppendComment(ctx, Comment{ID: "ca", IdeaID: "a", Author: "u1", Text: "from a"})
	require.NoError(t, err)
	_, err = s.AppendComment(ctx, Comment{ID: "cb", IdeaID: "b", Author: "u2", Text: "from b"})
	require.NoError(t, err)

	plan := func(bVersion int64) MergePlan {
		srcA, srcB := a, b
		srcA.Status, srcA.MergedInto, srcA.MergedFrom = StatusMerged, "m", []string{"b"}
		srcB.Status, srcB.MergedInto, srcB.MergedFrom = StatusMerged, "m", []string{"a"}
		srcB.Version = bVersion
		consolidated := pendingIdea("m", "r1")
		consolidated.Status = StatusApproved
		consolidated.MergedFrom = []string{"a", "b"}
		return MergePlan{
			Consolidated: consolidated,
			Sources:      []Idea{srcA, srcB},
			History:      MergeHistory{ID: "h1", FinalIdea: "m", MergedIdeas: []string{"a", "b"}, MergedBy: "r1", Contributors: []string{"u1", "u2"}},
		}
	}

	_, _, err = s.ApplyMerge(ctx, plan(99))
	require.True(t, errors.Is(err, ErrVersionConflict), "got %v", err)
	_, err = s.GetIdea(ctx, "m")
	assert.ErrorIs(t, err, ErrNotFound)
	untouched, err := s.GetIdea(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, untouched.Status)

	merged, history, err := s.ApplyMerge(ctx, plan(b.Version))
	require.NoError(t, err)
	require.Len(t, merged.Comments, 2)
	assert.Equal(t, "from a", merged.Comments[0].Text)
	assert.Equal(t, "from b", merged.Comments[1].Text)
	assert.Equal(t, "h1", history.ID)

	stored, err := s.GetIdea(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, stored.MergedFrom)
	require.Len(t, stored.Comments, 2)

	srcB, err := s.GetIdea(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, StatusMerged, srcB.Status)
	assert.Equal(t, "m", srcB.MergedInto)
	assert.Equal(t, []string{"a"}, srcB.MergedFrom)

	forB, err := s.ListMergeHistory(ctx, "b")
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, []string{"u1", "u2"}, forB[0].Contributors)

	_, err = s.DB().ExecContext(ctx, `DELETE FROM merge_history`)
	assert.Error(t, err, "merge history must be append-only")
}

func TestNotificationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, id := range []string{"n1", "n2", "n3"} {
		_, err := s.InsertNotification(ctx, Notification{
			ID: id, Recipient: "u1", Type: "system", Title: "t", Message: "m",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := s.InsertNotification(ctx, Notification{ID: "other", Recipient: "u2", Type: "system", Title: "t", Message: "m"})
	require.NoError(t, err)

	items, err := s.ListNotifications(ctx, "u1", NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "n3", items[0].ID)

	unread, err := s.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	readAt := base.Add(time.Hour)
	n, err := s.MarkNotificationRead(ctx, "u1", "n1", readAt)
	require.NoError(t, err)
	assert.True(t, n.IsRead)
	require.NotNil(t, n.ReadAt)
	assert.True(t, n.ReadAt.Equal(readAt))

	again, err := s.MarkNotificationRead(ctx, "u1", "n1", readAt.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, again.ReadAt.Equal(readAt), "first read time is kept")

	_, err = s.MarkNotificationRead(ctx, "u2", "n1", readAt)
	assert.ErrorIs(t, err, ErrNotFound)

	changed, err := s.MarkAllNotificationsRead(ctx, "u1", readAt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	onlyUnread, err := s.ListNotifications(ctx, "u1", NotificationFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, onlyUnread)

	require.NoError(t, s.DeleteNotification(ctx, "u1", "n2"))
	assert.ErrorIs(t, s.DeleteNotification(ctx, "u1", "n2"), ErrNotFound)
	assert.ErrorIs(t, s.DeleteNotification(ctx, "u1", "other"), ErrNotFound)
}

func TestUsersByRoleAndEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, u := range []User{
		{ID: "r2", DisplayName: "Rev Two", Email: "r2@example.edu", Role: "reviewer", IsActive: true},
		{ID: "r1", DisplayName: "Rev One", Email: "R1@Example.edu", Role: "reviewer", IsActive: true},
		{ID: "r3", DisplayName: "Rev Gone", Email: "r3@example.edu", Role: "reviewer", IsActive: false},
		{ID: "s1", DisplayName: "Student", Email: "s1@example.edu", Role: "student", IsActive: true},
	} {
		_, err := s.UpsertUser(ctx, u)
		require.NoError(t, err)
	}

	reviewers, err := s.FindActiveByRole(ctx, "reviewer")
	require.NoError(t, err)
	require.Len(t, reviewers, 2)
	assert.Equal(t, "r1", reviewers[0].ID)
	assert.Equal(t, "r2", reviewers[1].ID)

	byEmail, err := s.FindByEmail(ctx, "r1@example.EDU")
	require.NoError(t, err)
	assert.Equal(t, "r1", byEmail.ID)

	_, err = s.FindByID(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	promoted, err := s.UpsertUser(ctx, User{ID: "s1", DisplayName: "Student", Email: "s1@example.edu", Role: "reviewer", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "reviewer", promoted.Role)

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	page, total, err := s.ListUsers(ctx, "rev", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "Rev Gone", page[0].DisplayName)
	assert.Equal(t, "Rev One", page[1].DisplayName)

	page, total, err = s.ListUsers(ctx, "S1@", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "s1", page[0].ID)
}

func TestRebindSQLite(t *testing.T) {
	assert.Equal(t, "SELECT ?1, ?12 FROM t WHERE a LIKE '%'", rebind(DialectSQLite, "SELECT $1, $12 FROM t WHERE a LIKE '%'"))
	assert.Equal(t, "SELECT $1", rebind(DialectPostgres, "SELECT $1"))
}

func TestTimeValueScansSQLiteText(t *testing.T) {
	var tv timeValue
	require.NoError(t, tv.Scan("2026-01-02 03:04:05.5+00:00"))
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 500000000, time.UTC), tv.Time)

	require.NoError(t, tv.Scan(nil))
	assert.Nil(t, tv.ptr())

	assert.Error(t, tv.Scan("yesterday"))
}
