package runner

import (
	"context"
	"time"

	"github.com/caffeineduck/doctest"
)

// ExampleEvent describes one example before or after it runs. Outcome,
// Duration and Err are only set once the example is done.
type ExampleEvent struct {
	Test     *doctest.DocTest
	Example  *doctest.Example
	Outcome  Outcome
	Duration time.Duration
	Err      error
}

// RunEvent is emitted when a DocTest run completes.
type RunEvent struct {
	Test  *doctest.DocTest
	Stats Stats
}

// Hooks are optional callbacks invoked synchronously by Run.
type Hooks struct {
	OnExampleStart func(ctx context.Context, e ExampleEvent)
	OnExampleDone  func(ctx context.Context, e ExampleEvent)
	OnRunDone      func(ctx context.Context, e RunEvent)
}

// Chain combines hooks so each callback of every element is invoked in
// order.
func Chain(hooks ...Hooks) Hooks {
	var out Hooks
	for _, h := range hooks {
		h := h
		if h.OnExampleStart != nil {
			prev := out.OnExampleStart
			out.OnExampleStart = func(ctx context.Context, e ExampleEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnExampleStart(ctx, e)
			}
		}
		if h.OnExampleDone != nil {
			prev := out.OnExampleDone
			out.OnExampleDone = func(ctx context.Context, e ExampleEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnExampleDone(ctx, e)
			}
		}
		if h.OnRunDone != nil {
			prev := out.OnRunDone
			out.OnRunDone = func(ctx context.Context, e RunEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnRunDone(ctx, e)
			}
		}
	}
	return out
}
