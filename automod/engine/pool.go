package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/canvasmod/canvasmod/automod/tracker"

	"github.com/prometheus/client_golang/prometheus"
)

// Pool runs work on a fixed number of workers. Work items sharing a key run
// one at a time in the order they were added; items with different keys run
// concurrently.
type Pool struct {
	maxConcurrency int

	do func(context.Context, *tracker.Dispatch) error

	feeder chan *poolTask
	out    chan struct{}

	lk     sync.Mutex
	active map[int64][]*poolTask

	ident string

	// metrics
	itemsAdded     prometheus.Counter
	itemsProcessed prometheus.Counter
	itemsActive    prometheus.Counter
	workersActive  prometheus.Gauge

	log *slog.Logger
}

type poolTask struct {
	key     int64
	ctx     context.Context
	val     *tracker.Dispatch
	control string
}

func NewPool(maxC int, ident string, do func(context.Context, *tracker.Dispatch) error, logger *slog.Logger) *Pool {
	if maxC < 1 {
		maxC = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		maxConcurrency: maxC,

		do: do,

		feeder: make(chan *poolTask),
		active: make(map[int64][]*poolTask),
		out:    make(chan struct{}),

		ident: ident,

		itemsAdded:     workItemsAdded.WithLabelValues(ident),
		itemsProcessed: workItemsProcessed.WithLabelValues(ident),
		itemsActive:    workItemsActive.WithLabelValues(ident),
		workersActive:  workersActive.WithLabelValues(ident),

		log: logger.With("system", "pool", "ident", ident),
	}

	for i := 0; i < maxC; i++ {
		go p.worker()
	}

	p.workersActive.Set(float64(maxC))

	return p
}

// Shutdown waits for queued work to drain and stops every worker. AddWork
// must not be called concurrently with or after Shutdown.
func (p *Pool) Shutdown() {
	p.log.Info("shutting down worker pool")

	for i := 0; i < p.maxConcurrency; i++ {
		p.feeder <- &poolTask{
			control: "stop",
		}
	}

	close(p.feeder)

	for i := 0; i < p.maxConcurrency; i++ {
		<-p.out
	}

	p.workersActive.Set(0)
	p.log.Info("worker pool shutdown complete")
}

// AddWork queues a dispatch under key. It blocks until a worker accepts the
// item, unless another item with the same key is in flight, in which case it
// is appended to that key's backlog and AddWork returns at once.
func (p *Pool) AddWork(ctx context.Context, key int64, val *tracker.Dispatch) error {
	p.itemsAdded.Inc()
	t := &poolTask{
		key: key,
		ctx: context.WithoutCancel(ctx),
		val: val,
	}
	p.lk.Lock()

	a, ok := p.active[key]
	if ok {
		p.active[key] = append(a, t)
		p.lk.Unlock()
		return nil
	}

	p.active[key] = []*poolTask{}
	p.lk.Unlock()

	select {
	case p.feeder <- t:
		return nil
	case <-ctx.Done():
		p.lk.Lock()
		// items queued behind this one are dropped with it
		delete(p.active, key)
		p.lk.Unlock()
		return ctx.Err()
	}
}

// Backlog is the number of keys with work queued or running.
func (p *Pool) Backlog() int {
	p.lk.Lock()
	defer p.lk.Unlock()
	return len(p.active)
}

func (p *Pool) worker() {
	for work := range p.feeder {
		for work != nil {
			if work.control == "stop" {
				p.out <- struct{}{}
				return
			}

			p.itemsActive.Inc()
			if err := p.do(work.ctx, work.val); err != nil {
				p.log.Error("dispatch handler failed", "err", err, "key", work.key)
			}
			p.itemsProcessed.Inc()

			p.lk.Lock()
			rem, ok := p.active[work.key]
			if !ok {
				p.log.Error("should always have an 'active' entry if a worker is processing a job")
			}

			if len(rem) == 0 {
				delete(p.active, work.key)
				work = nil
			} else {
				work = rem[0]
				p.active[work.key] = rem[1:]
			}
			p.lk.Unlock()
		}
	}
}
