package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stickies/pkg/adapters/fs"
	"github.com/aretw0/stickies/pkg/core"
)

// The watcher debounces on a real clock; the fake one from setupRepo would
// never fire.
func setupWatchedRepo(t *testing.T) (*fs.Repository, <-chan core.Event, context.CancelFunc) {
	t.Helper()

	repo := fs.NewRepository(fs.Config{Path: filepath.Join(t.TempDir(), "stickies")})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	events, err := repo.Watch(ctx)
	require.NoError(t, err)
	return repo, events, cancel
}

func TestWatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Reports External Write", func(t *testing.T) {
		repo, events, _ := setupWatchedRepo(t)

		raw := `{"notes":[{"id":1,"title":"synced","content":""}],"nextId":2}`
		require.NoError(t, os.WriteFile(repo.Paths().DataFile, []byte(raw), 0644))

		select {
		case event := <-events:
			assert.Equal(t, core.EventModify, event.Type)
			assert.Equal(t, repo.Paths().DataFile, event.Path)
		case <-time.After(3 * time.Second):
			t.Fatal("no event for external write")
		}
	})

	t.Run("Ignores Own Writes", func(t *testing.T) {
		repo, events, _ := setupWatchedRepo(t)

		require.NoError(t, repo.Write(ctx, docWith("mine")))

		select {
		case event := <-events:
			t.Fatalf("unexpected event %s", event)
		case <-time.After(300 * time.Millisecond):
		}
	})

	t.Run("Reports Delete", func(t *testing.T) {
		repo, events, _ := setupWatchedRepo(t)
		require.NoError(t, repo.Write(ctx, docWith("gone soon")))

		require.NoError(t, os.Remove(repo.Paths().DataFile))

		select {
		case event := <-events:
			assert.Equal(t, core.EventDelete, event.Type)
		case <-time.After(3 * time.Second):
			t.Fatal("no event for delete")
		}
	})

	t.Run("Closes Channel On Cancel", func(t *testing.T) {
		repo, events, cancel := setupWatchedRepo(t)
		cancel()

		require.Eventually(t, func() bool {
			select {
			case _, ok := <-events:
				return !ok
			default:
				return false
			}
		}, 3*time.Second, 10*time.Millisecond)

		state := repo.State().(fs.RepositoryState)
		assert.False(t, state.WatcherActive)
	})
}
