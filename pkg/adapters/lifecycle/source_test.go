package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stickieslifecycle "github.com/aretw0/stickies/pkg/adapters/lifecycle"
	"github.com/aretw0/stickies/pkg/core"
)

func TestTopic(t *testing.T) {
	assert.Equal(t, stickieslifecycle.TopicModify, stickieslifecycle.Topic(core.EventModify))
	assert.Equal(t, stickieslifecycle.TopicDelete, stickieslifecycle.Topic(core.EventDelete))
}

func TestSource(t *testing.T) {
	t.Run("Forwards Changes Then Closes", func(t *testing.T) {
		in := make(chan core.Event, 2)
		in <- core.Event{Type: core.EventModify, Path: "/tmp/notes.json"}
		in <- core.Event{Type: core.EventDelete, Path: "/tmp/notes.json"}
		close(in)

		src := stickieslifecycle.NewSource(in, stickieslifecycle.WithNoteCount(func() int { return 3 }))
		require.NoError(t, src.Start(context.Background()))

		var got []stickieslifecycle.Change
		for e := range src.Events() {
			change, ok := e.(stickieslifecycle.Change)
			require.True(t, ok)
			got = append(got, change)
		}
		require.Len(t, got, 2)
		assert.Equal(t, stickieslifecycle.TopicModify, got[0].String())
		assert.Equal(t, stickieslifecycle.TopicDelete, got[1].String())
		assert.Equal(t, 3, got[0].Notes)
		assert.Equal(t, "/tmp/notes.json", got[0].Path)

		state := src.State().(stickieslifecycle.SourceState)
		assert.Equal(t, int64(2), state.Emitted)
		assert.Eventually(t, func() bool {
			return !src.State().(stickieslifecycle.SourceState).Running
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Without Counter", func(t *testing.T) {
		in := make(chan core.Event, 1)
		in <- core.Event{Type: core.EventModify}
		close(in)

		src := stickieslifecycle.NewSource(in)
		require.NoError(t, src.Start(context.Background()))
		e := <-src.Events()
		assert.Equal(t, -1, e.(stickieslifecycle.Change).Notes)
	})

	t.Run("Starts Once", func(t *testing.T) {
		src := stickieslifecycle.NewSource(make(chan core.Event))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		require.NoError(t, src.Start(ctx))
		assert.Error(t, src.Start(ctx))
	})

	t.Run("Stops On Cancel", func(t *testing.T) {
		in := make(chan core.Event)
		ctx, cancel := context.WithCancel(context.Background())

		src := stickieslifecycle.NewSource(in)
		require.NoError(t, src.Start(ctx))
		cancel()

		select {
		case _, ok := <-src.Events():
			assert.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("source did not close")
		}
	})
}

func TestSource_RoutedByTopic(t *testing.T) {
	in := make(chan core.Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var modified, deleted int
	router := lifecycle.NewRouter()
	router.AddSource(stickieslifecycle.NewSource(in))
	router.HandleFunc(stickieslifecycle.TopicModify, func(ctx context.Context, e lifecycle.Event) error {
		mu.Lock()
		defer mu.Unlock()
		modified++
		return nil
	})
	router.HandleFunc(stickieslifecycle.TopicDelete, func(ctx context.Context, e lifecycle.Event) error {
		mu.Lock()
		defer mu.Unlock()
		deleted++
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- router.Start(ctx) }()

	in <- core.Event{Type: core.EventModify}
	in <- core.Event{Type: core.EventModify}
	in <- core.Event{Type: core.EventDelete}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return modified == 2 && deleted == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("router did not stop")
	}
}
