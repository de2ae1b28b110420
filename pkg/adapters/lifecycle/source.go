// Package lifecycle bridges silt change streams into the lifecycle
// runtime, so watched collections can drive reactive applications.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/silt/pkg/core"
)

type siltSource struct {
	events <-chan core.Event
	out    chan lifecycle.Event
}

// NewSource adapts a repository watch channel to a lifecycle.Source.
// The source closes its output when the upstream channel closes.
func NewSource(events <-chan core.Event) lifecycle.Source {
	return &siltSource{
		events: events,
		out:    make(chan lifecycle.Event),
	}
}

func (s *siltSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *siltSource) Start(ctx context.Context) error {
	// The bridge goroutine runs under lifecycle.Go so it is tracked and
	// recovered like any other worker.
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				// core.Event implements lifecycle.Event (has String())
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
