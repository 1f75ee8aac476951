package tracker

import (
	"context"
	"errors"
	"log/slog"
)

var ErrActorStopped = errors.New("tracker actor stopped")

// Actor runs submitted closures one at a time on its own goroutine.
type Actor struct {
	name string
	ops  chan func()
	done chan struct{}
	log  *slog.Logger
}

func NewActor(name string, buffer int, logger *slog.Logger) *Actor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		name: name,
		ops:  make(chan func(), buffer),
		done: make(chan struct{}),
		log:  logger.With("system", "tracker-actor", "actor", name),
	}
}

// Run executes closures until ctx is cancelled. It must be called exactly
// once.
func (a *Actor) Run(ctx context.Context) error {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op := <-a.ops:
			actorQueueDepth.WithLabelValues(a.name).Set(float64(len(a.ops)))
			a.exec(op)
		}
	}
}

func (a *Actor) exec(op func()) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("tracker operation panicked", "err", r)
		}
	}()
	op()
}

// Submit enqueues a closure without waiting for it to run.
func (a *Actor) Submit(ctx context.Context, op func()) error {
	select {
	case a.ops <- op:
		return nil
	case <-a.done:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do enqueues a closure and waits until it has run.
func (a *Actor) Do(ctx context.Context, op func()) error {
	finished := make(chan struct{})
	if err := a.Submit(ctx, func() {
		defer close(finished)
		op()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-a.done:
		// the actor may have stopped after running the closure
		select {
		case <-finished:
			return nil
		default:
			return ErrActorStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
