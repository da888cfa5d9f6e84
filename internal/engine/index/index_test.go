package index

import (
	"fmt"
	"testing"

	"github.com/fastsearch/fastsearch/internal/engine/schema"
	"github.com/fastsearch/fastsearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUsersIndex(t *testing.T) *Index {
	t.Helper()
	mapping, err := schema.Parse(map[string]string{
		"name":      "text",
		"bio":       "text",
		"category":  "keyword",
		"age":       "integer",
		"active":    "boolean",
		"signed_up": "date",
	})
	require.NoError(t, err)
	return New("users", mapping)
}

func TestIndexDocument(t *testing.T) {
	t.Run("stores and retrieves a document", func(t *testing.T) {
		ix := newUsersIndex(t)
		require.NoError(t, ix.IndexDocument("user_1", map[string]any{
			"name": "Alice Smith",
			"age":  30,
		}))

		fields, err := ix.GetDocument("user_1")
		require.NoError(t, err)
		assert.Equal(t, "Alice Smith", fields["name"])
		assert.Equal(t, int64(30), fields["age"])
	})

	t.Run("rejects empty document ID", func(t *testing.T) {
		ix := newUsersIndex(t)
		err := ix.IndexDocument("", map[string]any{"name": "Alice"})
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("validation failure leaves no partial state", func(t *testing.T) {
		ix := newUsersIndex(t)
		err := ix.IndexDocument("user_1", map[string]any{
			"name": "Alice",
			"age":  "not-a-number",
		})
		assert.ErrorIs(t, err, errors.ErrSchema)

		_, err = ix.GetDocument("user_1")
		assert.ErrorIs(t, err, errors.ErrNotFound)
		assert.Zero(t, ix.Stats().DocumentCount)
		assert.Zero(t, ix.Stats().TermCount)
	})

	t.Run("re-indexing replaces the whole document", func(t *testing.T) {
		ix := newUsersIndex(t)
		require.NoError(t, ix.IndexDocument("user_1", map[string]any{"name": "Alice"}))
		require.NoError(t, ix.IndexDocument("user_1", map[string]any{"name": "Carol"}))

		results, err := ix.Search("Alice", nil, 0)
		require.NoError(t, err)
		assert.Empty(t, results, "old postings must not survive a re-index")

		results, err = ix.Search("Carol", nil, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "user_1", results[0].DocID)
		assert.Equal(t, 1, ix.Stats().DocumentCount)
	})
}

func TestDeleteDocument(t *testing.T) {
	ix := newUsersIndex(t)
	require.NoError(t, ix.IndexDocument("user_1", map[string]any{"name": "Alice"}))

	require.NoError(t, ix.DeleteDocument("user_1"))

	results, err := ix.Search("Alice", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, ix.Stats().DocumentCount)
	assert.Zero(t, ix.Stats().TermCount, "sole-document terms must be dropped")

	err = ix.DeleteDocument("user_1")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSearch(t *testing.T) {
	seed := func(t *testing.T) *Index {
		ix := newUsersIndex(t)
		require.NoError(t, ix.IndexDocument("user_1", map[string]any{
			"name":      "Alice Smith",
			"category":  "staff",
			"age":       30,
			"active":    true,
			"signed_up": "2024-03-01",
		}))
		require.NoError(t, ix.IndexDocument("user_2", map[string]any{
			"name":      "Bob Jones",
			"category":  "guest",
			"age":       35,
			"active":    false,
			"signed_up": "2024-06-15",
		}))
		return ix
	}

	t.Run("matches are case-insensitive and ranked", func(t *testing.T) {
		ix := seed(t)
		results, err := ix.Search("ALICE", nil, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "user_1", results[0].DocID)
		assert.Positive(t, results[0].Score)
		assert.Equal(t, "Alice Smith", results[0].Fields["name"])
	})

	t.Run("union of query terms, not intersection", func(t *testing.T) {
		ix := seed(t)
		results, err := ix.Search("alice bob", nil, 0)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("repeated query terms score per occurrence", func(t *testing.T) {
		ix := seed(t)
		single, err := ix.Search("alice", nil, 0)
		require.NoError(t, err)
		double, err := ix.Search("alice alice", nil, 0)
		require.NoError(t, err)
		require.Len(t, single, 1)
		require.Len(t, double, 1)
		assert.InDelta(t, 2*single[0].Score, double[0].Score, 0.0001)
	})

	t.Run("term in every document still scores positive", func(t *testing.T) {
		ix := newUsersIndex(t)
		for i := 0; i < 5; i++ {
			require.NoError(t, ix.IndexDocument(fmt.Sprintf("user_%d", i), map[string]any{
				"name": "common term",
			}))
		}
		results, err := ix.Search("common", nil, 0)
		require.NoError(t, err)
		require.Len(t, results, 5)
		for _, r := range results {
			assert.Positive(t, r.Score)
		}
	})

	t.Run("equal scores tie-break by ascending document ID", func(t *testing.T) {
		ix := newUsersIndex(t)
		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, ix.IndexDocument(id, map[string]any{"name": "same text"}))
		}
		results, err := ix.Search("same", nil, 0)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "a", results[0].DocID)
		assert.Equal(t, "b", results[1].DocID)
		assert.Equal(t, "c", results[2].DocID)
	})

	t.Run("limit truncates after sorting", func(t *testing.T) {
		ix := newUsersIndex(t)
		for _, id := range []string{"b", "a", "c"} {
			require.NoError(t, ix.IndexDocument(id, map[string]any{"name": "same text"}))
		}
		results, err := ix.Search("same", nil, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "a", results[0].DocID)
		assert.Equal(t, "b", results[1].DocID)
	})

	t.Run("no query terms yields no results", func(t *testing.T) {
		ix := seed(t)
		results, err := ix.Search("", nil, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("unknown terms yield no results", func(t *testing.T) {
		ix := seed(t)
		results, err := ix.Search("zzyzx", nil, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestSearchFilters(t *testing.T) {
	seed := func(t *testing.T) *Index {
		ix := newUsersIndex(t)
		require.NoError(t, ix.IndexDocument("user_1", map[string]any{
			"name":      "Alice Smith",
			"category":  "staff",
			"age":       30,
			"active":    true,
			"signed_up": "2024-03-01",
		}))
		require.NoError(t, ix.IndexDocument("user_2", map[string]any{
			"name":      "Alice Jones",
			"category":  "guest",
			"age":       35,
			"active":    false,
			"signed_up": "2024-06-15",
		}))
		return ix
	}

	t.Run("exact keyword filter", func(t *testing.T) {
		ix := seed(t)
		results, err := ix.Search("alice", []Filter{{Field: "category", Exact: "staff"}}, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "user_1", results[0].DocID)
	})

	t.Run("exact integer filter excludes non-matching hits", func(t *testing.T) {
		ix := seed(t)
		results, err := ix.Search("smith", []Filter{{Field: "age", Exact: 35}}, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("integer range is inclusive on both bounds", func(t *testing.T) {
		ix := seed(t)
		results, err := ix.Search("alice", []Filter{{Field: "age", Min: 30, Max: 35}}, 0)
		require.NoError(t, err)
		assert.Len(t, results, 2)

		results, err = ix.Search("alice", []Filter{{Field: "age", Min: 31}}, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "user_2", results[0].DocID)
	})

	t.Run("date range filter", func(t *testing.T) {
		ix := seed(t)
		results, err := ix.Search("alice", []Filter{{Field: "signed_up", Max: "2024-04-01"}}, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "user_1", results[0].DocID)
	})

	t.Run("boolean exact filter", func(t *testing.T) {
		ix := seed(t)
		results, err := ix.Search("alice", []Filter{{Field: "active", Exact: true}}, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "user_1", results[0].DocID)
	})

	t.Run("filters are conjunctive", func(t *testing.T) {
		ix := seed(t)
		results, err := ix.Search("alice", []Filter{
			{Field: "category", Exact: "staff"},
			{Field: "age", Exact: 35},
		}, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("document missing the filtered field never matches", func(t *testing.T) {
		ix := newUsersIndex(t)
		require.NoError(t, ix.IndexDocument("user_1", map[string]any{"name": "Alice"}))
		results, err := ix.Search("alice", []Filter{{Field: "age", Min: 0}}, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("filtering a text field is a schema error", func(t *testing.T) {
		ix := seed(t)
		_, err := ix.Search("alice", []Filter{{Field: "name", Exact: "Alice Smith"}}, 0)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})

	t.Run("range on an unordered field is a schema error", func(t *testing.T) {
		ix := seed(t)
		_, err := ix.Search("alice", []Filter{{Field: "category", Min: "a"}}, 0)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})

	t.Run("filter on undeclared field is a schema error", func(t *testing.T) {
		ix := seed(t)
		_, err := ix.Search("alice", []Filter{{Field: "height", Exact: 180}}, 0)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})
}

func TestStats(t *testing.T) {
	ix := newUsersIndex(t)
	assert.Zero(t, ix.Stats().DocumentCount)
	assert.Zero(t, ix.Stats().AvgDocLength)

	require.NoError(t, ix.IndexDocument("user_1", map[string]any{"name": "alpha beta"}))
	require.NoError(t, ix.IndexDocument("user_2", map[string]any{"name": "alpha beta gamma delta"}))

	stats := ix.Stats()
	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, 4, stats.TermCount)
	assert.InDelta(t, 3.0, stats.AvgDocLength, 0.0001)
	assert.Equal(t, "text", stats.Mapping["name"])
}

func TestDocuments(t *testing.T) {
	ix := newUsersIndex(t)
	require.NoError(t, ix.IndexDocument("b", map[string]any{"name": "Bob"}))
	require.NoError(t, ix.IndexDocument("a", map[string]any{"name": "Alice", "age": 30}))

	docs := ix.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)
	assert.Equal(t, int64(30), docs[0].Fields["age"])
}
