package fs

import (
	"sync"
	"testing"
	"time"

	"github.com/aretw0/silt/pkg/core"
)

func TestDebouncerCollapsesBursts(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)
	defer d.stopAndWait(time.Second)

	var mu sync.Mutex
	var delivered []core.Event

	e := core.Event{Type: core.EventModify, Collection: "users", ID: "ada"}
	for i := 0; i < 5; i++ {
		d.add(e, func(got core.Event) {
			mu.Lock()
			delivered = append(delivered, got)
			mu.Unlock()
		})
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 {
		t.Errorf("delivered %d events, want 1", len(delivered))
	}
}

func TestDebouncerKeysByTypeAndPath(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)
	defer d.stopAndWait(time.Second)

	var mu sync.Mutex
	count := 0
	deliver := func(core.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	d.add(core.Event{Type: core.EventCreate, Collection: "users", ID: "ada"}, deliver)
	d.add(core.Event{Type: core.EventDelete, Collection: "users", ID: "ada"}, deliver)
	d.add(core.Event{Type: core.EventCreate, Collection: "users", ID: "bob"}, deliver)

	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Errorf("delivered %d events, want 3", count)
	}
}

func TestDebouncerStopDropsPending(t *testing.T) {
	d := newDebouncer(500 * time.Millisecond)

	var mu sync.Mutex
	count := 0
	d.add(core.Event{Type: core.EventCreate, Collection: "users", ID: "ada"}, func(core.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	d.stopAndWait(time.Second)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("delivered %d events after stop, want 0", count)
	}
}
