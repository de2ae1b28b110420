package fs

import (
	"sync"
	"time"

	"github.com/aretw0/silt/pkg/core"
)

// debouncer coalesces bursts of events for the same record. Editors and
// git checkouts touch a file several times in quick succession; only the
// last event within the window is delivered.
type debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window: window,
		timers: make(map[string]*time.Timer),
	}
}

// add schedules delivery of the event, replacing any pending delivery
// for the same record.
func (d *debouncer) add(e core.Event, deliver func(core.Event)) {
	key := string(e.Type) + "\x00" + e.Collection + "/" + e.ID

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if t, ok := d.timers[key]; ok {
		t.Stop()
	} else {
		d.wg.Add(1)
	}

	d.timers[key] = time.AfterFunc(d.window, func() {
		defer d.wg.Done()

		d.mu.Lock()
		delete(d.timers, key)
		stopped := d.stopped
		d.mu.Unlock()

		if !stopped {
			deliver(e)
		}
	})
}

// stopAndWait refuses new events and waits for in-flight timers to fire
// or be cancelled, up to the given timeout.
func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	for key, t := range d.timers {
		if t.Stop() {
			// Timer cancelled before firing; settle its waitgroup slot.
			d.wg.Done()
			delete(d.timers, key)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
