package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	cases := []struct {
		name string
		a    string
		b    string
		want int
	}{
		{name: "identical", a: "solar panel cleaning robot", b: "solar panel cleaning robot", want: 100},
		{name: "both empty", a: "", b: "", want: 0},
		{name: "whitespace only", a: "   \t", b: "\n", want: 0},
		{name: "one empty", a: "solar", b: "", want: 0},
		{name: "case folded", a: "Solar PANEL", b: "solar panel", want: 100},
		{name: "partial overlap", a: "solar panel cleaning robot", b: "automated robot for cleaning solar panels", want: 43},
		{name: "disjoint", a: "solar panel cleaner", b: "cafeteria menu app", want: 0},
		{name: "duplicate tokens collapse", a: "robot robot robot", b: "robot", want: 100},
		{name: "quarter overlap", a: "a b", b: "a b c d e f g h", want: 25},
		{name: "half rounds up", a: "a b c d", b: "a e f g h", want: 13},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.a, tc.b))
		})
	}
}

func TestScoreIsSymmetric(t *testing.T) {
	a := "library book exchange kiosk"
	b := "kiosk for campus book swaps"
	assert.Equal(t, Score(a, b), Score(b, a))
}

func TestFindSimilarFiltersAndRanks(t *testing.T) {
	corpus := []Document{
		{ID: "i1", Title: "automated robot", Description: "for cleaning solar panels", Status: "pending"},
		{ID: "i2", Title: "cafeteria menu app", Description: "", Status: "approved"},
		{ID: "i3", Title: "solar panel cleaning robot", Description: "", Status: "rejected"},
		{ID: "i4", Title: "solar panel cleaning robot", Description: "", Status: "merged"},
		{ID: "self", Title: "solar panel cleaning robot", Description: "", Status: "pending"},
		{ID: "i5", Title: "solar panel cleaning robot", Description: "", Status: "approved"},
	}

	matches := FindSimilar(corpus, "solar panel cleaning robot", "", "self")
	require.Len(t, matches, 2)
	assert.Equal(t, "i5", matches[0].ID)
	assert.Equal(t, 100, matches[0].Score)
	assert.Equal(t, "i1", matches[1].ID)
	assert.Greater(t, matches[1].Score, Threshold)
}

func TestFindSimilarKeepsCorpusOrderOnTies(t *testing.T) {
	corpus := []Document{
		{ID: "b", Title: "water quality sensor", Status: "pending"},
		{ID: "a", Title: "water quality sensor", Status: "approved"},
		{ID: "c", Title: "water quality sensor", Status: "pending"},
	}

	matches := FindSimilar(corpus, "water quality sensor", "", "")
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{matches[0].ID, matches[1].ID, matches[2].ID})
}

func TestFindSimilarExcludesThresholdScore(t *testing.T) {
	// one shared token in a union of six scores 17; in a union of three, 33.
	corpus := []Document{
		{ID: "low", Title: "alpha b c d e", Status: "pending"},
		{ID: "high", Title: "alpha beta", Status: "pending"},
	}
	matches := FindSimilar(corpus, "alpha", "gamma", "")
	require.Len(t, matches, 1)
	assert.Equal(t, "high", matches[0].ID)
	assert.Equal(t, 33, matches[0].Score)
}

func TestFindSimilarEmptyCorpus(t *testing.T) {
	matches := FindSimilar(nil, "anything", "", "")
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}
