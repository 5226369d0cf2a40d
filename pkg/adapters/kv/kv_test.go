package kv

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stickies/pkg/core"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleDoc() core.Document {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return core.Document{
		Notes: []core.Note{
			{ID: 1, Title: "groceries", Content: "milk", CreatedAt: at, UpdatedAt: at},
			{ID: 4, Title: "todo", Content: "", CreatedAt: at, UpdatedAt: at.Add(time.Hour)},
		},
		NextID:       5,
		LastModified: at,
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestStore_Read(t *testing.T) {
	ctx := context.Background()

	t.Run("Absent Key Is Empty", func(t *testing.T) {
		s := openInMemory(t)

		doc, err := s.Read(ctx)
		assert.True(t, core.IsKind(err, core.KindNotFound))
		assert.True(t, core.EmptyDocument().Equal(doc))
	})

	t.Run("Corrupt Value Is Empty", func(t *testing.T) {
		s := openInMemory(t)
		require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(DefaultKey), []byte("{broken"))
		}))

		doc, err := s.Read(ctx)
		assert.True(t, core.IsKind(err, core.KindCorrupt))
		assert.True(t, core.EmptyDocument().Equal(doc))
	})
}

func TestStore_Write(t *testing.T) {
	ctx := context.Background()

	t.Run("Round Trip", func(t *testing.T) {
		s := openInMemory(t)
		want := sampleDoc()

		require.NoError(t, s.Write(ctx, want))

		got, err := s.Read(ctx)
		require.NoError(t, err)
		assert.True(t, want.Equal(got))
	})

	t.Run("Last Write Wins", func(t *testing.T) {
		s := openInMemory(t)
		require.NoError(t, s.Write(ctx, sampleDoc()))
		require.NoError(t, s.Write(ctx, core.EmptyDocument()))

		got, err := s.Read(ctx)
		require.NoError(t, err)
		assert.Empty(t, got.Notes)
	})

	t.Run("Custom Key", func(t *testing.T) {
		s, err := Open(Config{InMemory: true, Key: "stickies"})
		require.NoError(t, err)
		defer s.Close()

		require.NoError(t, s.Write(ctx, sampleDoc()))
		require.NoError(t, s.db.View(func(txn *badger.Txn) error {
			_, err := txn.Get([]byte("stickies"))
			return err
		}))
	})
}

func TestStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, sampleDoc()))
	require.NoError(t, s.Close())

	reopened, err := Open(Config{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Read(ctx)
	require.NoError(t, err)
	assert.True(t, sampleDoc().Equal(got))
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	_, err = s.Read(ctx)
	assert.True(t, core.IsKind(err, core.KindUnavailable))
	assert.ErrorIs(t, err, core.ErrClosed)

	err = s.Write(ctx, sampleDoc())
	assert.True(t, core.IsKind(err, core.KindUnavailable))

	state := s.State().(StoreState)
	assert.True(t, state.Closed)
	assert.Equal(t, "kv-store", s.ComponentType())
}

func TestStore_CollectGarbage(t *testing.T) {
	ctx := context.Background()

	t.Run("Persistent Store", func(t *testing.T) {
		s, err := Open(Config{Path: t.TempDir()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		for i := 0; i < 50; i++ {
			doc := sampleDoc()
			doc.Notes[0].Content = strings.Repeat("x", i)
			require.NoError(t, s.Write(ctx, doc))
		}

		_, err = s.CollectGarbage(DefaultGCDiscardRatio)
		require.NoError(t, err)
		assert.Equal(t, int64(1), s.State().(StoreState).GCRuns)

		got, err := s.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("x", 49), got.Notes[0].Content)
	})

	t.Run("In Memory Is A No-Op", func(t *testing.T) {
		s := openInMemory(t)
		n, err := s.CollectGarbage(DefaultGCDiscardRatio)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Zero(t, s.State().(StoreState).GCRuns)
	})

	t.Run("Rejects Bad Ratio", func(t *testing.T) {
		s := openInMemory(t)
		for _, ratio := range []float64{0, 1, -0.5} {
			_, err := s.CollectGarbage(ratio)
			assert.Error(t, err, "ratio %v", ratio)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		s, err := Open(Config{InMemory: true})
		require.NoError(t, err)
		require.NoError(t, s.Close())

		_, err = s.CollectGarbage(DefaultGCDiscardRatio)
		assert.True(t, core.IsKind(err, core.KindUnavailable))
	})
}
