package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fastsearch/fastsearch/internal/engine"
	"github.com/fastsearch/fastsearch/pkg/config"
	"github.com/fastsearch/fastsearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEventEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(config.EngineConfig{
		DataDir:      t.TempDir(),
		DefaultLimit: 10,
		MaxResults:   100,
	})
	require.NoError(t, err)
	require.NoError(t, eng.CreateIndex("users", map[string]string{"name": "text"}))
	return eng
}

func encodeEvent(t *testing.T, event DocumentEvent) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return data
}

func TestHandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("index event stores the document", func(t *testing.T) {
		eng := newEventEngine(t)
		handler := HandleEvent(eng)

		err := handler(ctx, []byte("user_1"), encodeEvent(t, DocumentEvent{
			Action: ActionIndex,
			Index:  "users",
			DocID:  "user_1",
			Fields: map[string]any{"name": "Alice"},
		}))
		require.NoError(t, err)

		fields, err := eng.GetDocument("users", "user_1")
		require.NoError(t, err)
		assert.Equal(t, "Alice", fields["name"])
	})

	t.Run("delete event removes the document", func(t *testing.T) {
		eng := newEventEngine(t)
		handler := HandleEvent(eng)
		require.NoError(t, eng.IndexDocument(ctx, "users", "user_1", map[string]any{"name": "Alice"}))

		err := handler(ctx, []byte("user_1"), encodeEvent(t, DocumentEvent{
			Action: ActionDelete,
			Index:  "users",
			DocID:  "user_1",
		}))
		require.NoError(t, err)

		_, err = eng.GetDocument("users", "user_1")
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("undecodable events are skipped without error", func(t *testing.T) {
		handler := HandleEvent(newEventEngine(t))
		assert.NoError(t, handler(ctx, []byte("k"), []byte("{not json")))
	})

	t.Run("unknown actions are skipped without error", func(t *testing.T) {
		handler := HandleEvent(newEventEngine(t))
		err := handler(ctx, []byte("k"), encodeEvent(t, DocumentEvent{
			Action: "upsert",
			Index:  "users",
			DocID:  "user_1",
		}))
		assert.NoError(t, err)
	})

	t.Run("engine errors propagate so the message is retried", func(t *testing.T) {
		handler := HandleEvent(newEventEngine(t))
		err := handler(ctx, []byte("k"), encodeEvent(t, DocumentEvent{
			Action: ActionIndex,
			Index:  "missing",
			DocID:  "user_1",
			Fields: map[string]any{"name": "Alice"},
		}))
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}
