package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaflow/api/internal/logging"
	"ideaflow/api/internal/store"
)

type fakeIdeaSearcher struct {
	ideas []store.Idea
	err   error
	limit int
}

func (f *fakeIdeaSearcher) SearchIdeas(_ context.Context, _ string, limit int) ([]store.Idea, error) {
	f.limit = limit
	return f.ideas, f.err
}

func TestStoreSearchFiltersAndPages(t *testing.T) {
	fake := &fakeIdeaSearcher{ideas: []store.Idea{
		{ID: "a", Title: "Solar roofs", Description: "panels", Domain: "energy", Status: store.StatusPending},
		{ID: "b", Title: "Solar lamps", Description: "lights", Domain: "energy", Status: store.StatusApproved, Tags: []string{"solar"}},
		{ID: "c", Title: "Solar water", Description: "heat", Domain: "water", Status: store.StatusApproved},
	}}
	s := NewStoreSearch(fake)

	results, total, err := s.Search(context.Background(), Query{Text: "solar", Status: store.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].ID)
	assert.Equal(t, []string{"solar"}, results[0].Tags)
	assert.Equal(t, []string{}, results[1].Tags)

	paged, total, err := s.Search(context.Background(), Query{Text: "solar", Domain: "energy", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, paged, 1)
	assert.Equal(t, "b", paged[0].ID)
	assert.Equal(t, 2, fake.limit)

	empty, _, err := s.Search(context.Background(), Query{Text: "  "})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	svc := NewService(nil, NewStoreSearch(&fakeIdeaSearcher{ideas: []store.Idea{{ID: "a", Title: "x"}}}), logging.Discard())
	resp := svc.Search(context.Background(), Query{Text: "x"})
	assert.Equal(t, "store", resp.Engine)
	assert.Equal(t, 1, resp.Total)

	failing := NewService(nil, NewStoreSearch(&fakeIdeaSearcher{err: errors.New("db down")}), logging.Discard())
	resp = failing.Search(context.Background(), Query{Text: "x"})
	assert.Equal(t, []Result{}, resp.Results)

	// Indexing without Meili is a no-op.
	svc.IndexIdea(store.Idea{ID: "a"})
	svc.DeleteIdea("a")
}

func TestHitToResultPrefersHighlights(t *testing.T) {
	hit := meili.Hit{
		"id":          json.RawMessage(`"i1"`),
		"title":       json.RawMessage(`"Solar roofs"`),
		"description": json.RawMessage(`"Install panels"`),
		"domain":      json.RawMessage(`"energy"`),
		"status":      json.RawMessage(`"approved"`),
		"tags":        json.RawMessage(`["solar","campus"]`),
		"_formatted":  json.RawMessage(`{"title":"<mark>Solar</mark> roofs","tags":["solar"]}`),
	}
	r := hitToResult(hit)
	assert.Equal(t, "i1", r.ID)
	assert.Equal(t, "<mark>Solar</mark> roofs", r.Title)
	assert.Equal(t, "Install panels", r.Snippet)
	assert.Equal(t, []string{"solar", "campus"}, r.Tags)
}

func TestBuildFilters(t *testing.T) {
	assert.Empty(t, buildFilters(Query{}))
	assert.Equal(t, []string{`status = "approved"`, `domain = "energy"`}, buildFilters(Query{Status: "approved", Domain: "energy"}))
}

func TestMeiliSearchAgainstFakeServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/health":
			_, _ = io.WriteString(w, `{"status":"available"}`)
		case "/multi-search":
			_, _ = io.WriteString(w, `{"results":[{"indexUid":"ideaflow_ideas","hits":[{"id":"i1","title":"Solar roofs","description":"panels","domain":"energy","status":"pending","tags":[]}],"estimatedTotalHits":1,"query":"solar","limit":20,"offset":0,"processingTimeMs":1}]}`)
		default:
			w.WriteHeader(http.StatusAccepted)
			_, _ = io.WriteString(w, `{"taskUid":1,"indexUid":"ideaflow_ideas","status":"enqueued","type":"indexCreation","enqueuedAt":"2026-01-01T00:00:00Z"}`)
		}
	}))
	defer ts.Close()

	m := NewMeili(ts.URL, "", logging.Discard())
	defer m.Close()
	require.True(t, m.Healthy())

	results, total, err := m.Search(context.Background(), Query{Text: "solar"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, "Solar roofs", results[0].Title)

	svc := NewService(m, NewStoreSearch(&fakeIdeaSearcher{}), logging.Discard())
	assert.Equal(t, "meilisearch", svc.Search(context.Background(), Query{Text: "solar"}).Engine)
}

func TestMeiliUnreachableStartsUnhealthy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	m := NewMeili(ts.URL, "", logging.Discard())
	defer m.Close()
	assert.False(t, m.Healthy())

	_, _, err := m.Search(context.Background(), Query{Text: "x"})
	assert.Error(t, err)
}
