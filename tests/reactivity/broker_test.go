package reactivity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/silt"
	"github.com/aretw0/silt/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWatchDecoupling ensures that a slow consumer never blocks writers:
// the watch stream buffers events so Save returns immediately even when
// nobody is reading yet.
func TestWatchDecoupling(t *testing.T) {
	repo, err := silt.Init("mem://broker", silt.WithAdapter("memory"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, ok := repo.(core.Watchable)
	require.True(t, ok)
	stream, err := w.Watch(ctx, "**/*")
	require.NoError(t, err)

	// Fast producer, no reader attached yet. If Watch did not decouple,
	// the first Save would hang on event delivery.
	done := make(chan bool)
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			rec := core.Record{
				Collection: "events",
				Key:        silt.StringKey(fmt.Sprintf("evt-%d", i)),
				Fields:     core.Metadata{"seq": i},
			}
			if err := repo.Save(ctx, rec); err != nil {
				t.Errorf("save %d failed: %v", i, err)
				return
			}
		}
	}()

	select {
	case <-done:
		// Producer finished even though nothing was consumed.
	case <-time.After(2 * time.Second):
		t.Fatal("Producer blocked on an unread watch stream")
	}

	// Now drain the buffer.
	count := 0
	timeout := time.After(1 * time.Second)
	for count < 5 {
		select {
		case e := <-stream:
			assert.Equal(t, core.EventCreate, e.Type)
			assert.Equal(t, "events", e.Collection)
			count++
		case <-timeout:
			t.Fatalf("Failed to read buffered events, got %d of 5", count)
		}
	}
	assert.Equal(t, 5, count)
}

// TestWatchOverflowDrops verifies the slow-consumer policy: once the buffer
// fills, writers keep going and overflow events are dropped instead of
// stalling the store.
func TestWatchOverflowDrops(t *testing.T) {
	repo, err := silt.Init("mem://overflow", silt.WithAdapter("memory"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := repo.(core.Watchable)
	stream, err := w.Watch(ctx, "**/*")
	require.NoError(t, err)

	// Far more writes than the stream buffers.
	done := make(chan bool)
	go func() {
		defer close(done)
		for i := 0; i < 64; i++ {
			rec := core.Record{
				Collection: "events",
				Key:        silt.StringKey(fmt.Sprintf("evt-%d", i)),
				Fields:     core.Metadata{"seq": i},
			}
			if err := repo.Save(ctx, rec); err != nil {
				t.Errorf("save %d failed: %v", i, err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Producer blocked despite overflow policy")
	}

	// Whatever survived the buffer must still be well-formed and ordered
	// from the head of the burst.
	received := 0
	timeout := time.After(500 * time.Millisecond)
drain:
	for {
		select {
		case e := <-stream:
			assert.Equal(t, "events", e.Collection)
			received++
		case <-timeout:
			break drain
		}
	}
	assert.Greater(t, received, 0, "expected at least the buffered head of the burst")
	assert.Less(t, received, 64, "overflow should have dropped some events")
}
