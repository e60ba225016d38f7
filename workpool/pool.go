// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package workpool implements a bounded pool of named worker goroutines fed
// by an unbounded FIFO queue.  Core workers live as long as the pool; workers
// started above the core size exit after an idle period.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/pprof"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/queue"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultKeepAlive is how long a worker above the core size may stay
	// idle before exiting.
	DefaultKeepAlive = 30 * time.Second

	// defaultQueueBuffer is the channel buffer of the task queue.  The
	// queue itself is unbounded.
	defaultQueueBuffer = 16
)

var (
	// ErrPoolStopped is returned when submitting to a stopped pool, and
	// completes tasks still queued when the pool stops.
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrInvalidConfig is returned for an unusable pool configuration.
	ErrInvalidConfig = errors.New("invalid worker pool config")
)

// Config describes the sizing and naming of a pool.
type Config struct {
	// CorePoolSize is the number of workers kept alive while idle.
	CorePoolSize int

	// MaxPoolSize is the upper bound on concurrently running workers.
	MaxPoolSize int

	// KeepAlive is how long a worker above CorePoolSize may be idle
	// before it exits.  Zero makes such workers exit as soon as the queue
	// is empty.
	KeepAlive time.Duration

	// NamePrefix names the workers prefix-1, prefix-2 and so on.
	NamePrefix string

	// Registerer, if set, receives the pool's metric collectors.
	Registerer prometheus.Registerer
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch {
	case c.CorePoolSize < 0:
		return fmt.Errorf("%w: core pool size %d is negative",
			ErrInvalidConfig, c.CorePoolSize)

	case c.MaxPoolSize < 1:
		return fmt.Errorf("%w: max pool size %d must be at least 1",
			ErrInvalidConfig, c.MaxPoolSize)

	case c.MaxPoolSize < c.CorePoolSize:
		return fmt.Errorf("%w: max pool size %d below core pool size "+
			"%d", ErrInvalidConfig, c.MaxPoolSize, c.CorePoolSize)

	case c.KeepAlive < 0:
		return fmt.Errorf("%w: negative keepalive %v",
			ErrInvalidConfig, c.KeepAlive)

	case c.NamePrefix == "":
		return fmt.Errorf("%w: empty name prefix", ErrInvalidConfig)
	}

	return nil
}

// Stats is a point in time view of a pool.
type Stats struct {
	Workers   int
	Idle      int
	Queued    int
	Completed uint64
	Failed    uint64
}

// Pool runs submitted tasks on a bounded set of named workers.
type Pool struct {
	started sync.Once
	stopped sync.Once

	cfg Config

	queue *queue.ConcurrentQueue

	// mu guards the fields below.
	mu       sync.Mutex
	running  bool
	workers  int
	idle     int
	pending  map[uint64]runnable
	workerID uint64

	taskID    atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64

	metrics *metrics

	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates a pool.  Start must be called before tasks run.
func New(cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := newMetrics(cfg.NamePrefix)
	if cfg.Registerer != nil {
		if err := m.register(cfg.Registerer); err != nil {
			return nil, err
		}
	}

	return &Pool{
		cfg:     cfg,
		queue:   queue.NewConcurrentQueue(defaultQueueBuffer),
		pending: make(map[uint64]runnable),
		metrics: m,
		quit:    make(chan struct{}),
	}, nil
}

// Name returns the pool's worker name prefix.
func (p *Pool) Name() string {
	return p.cfg.NamePrefix
}

// Start starts the queue and the core workers.
func (p *Pool) Start() error {
	p.started.Do(func() {
		log.Infof("Starting worker pool %s (core=%d, max=%d, "+
			"keepalive=%v)", p.cfg.NamePrefix, p.cfg.CorePoolSize,
			p.cfg.MaxPoolSize, p.cfg.KeepAlive)

		p.queue.Start()

		p.mu.Lock()
		p.running = true
		for p.workers < p.cfg.CorePoolSize {
			p.spawnLocked()
		}
		p.mu.Unlock()
	})

	return nil
}

// Stop stops accepting tasks, waits for running tasks to finish and fails
// every task still queued with ErrPoolStopped.
func (p *Pool) Stop() {
	p.stopped.Do(func() {
		log.Infof("Stopping worker pool %s", p.cfg.NamePrefix)

		p.mu.Lock()
		p.running = false
		p.mu.Unlock()

		close(p.quit)
		p.wg.Wait()
		p.queue.Stop()

		p.mu.Lock()
		pending := p.pending
		p.pending = make(map[uint64]runnable)
		p.mu.Unlock()

		for _, task := range pending {
			task.fail(ErrPoolStopped)
		}
		p.metrics.queued.Set(0)

		log.Debugf("Worker pool %s stopped, %d queued %s dropped",
			p.cfg.NamePrefix, len(pending),
			pickNoun(len(pending), "task", "tasks"))
	})
}

// Stats returns the current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Workers:   p.workers,
		Idle:      p.idle,
		Queued:    len(p.pending),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Submit queues f to run on p.  The task's context is derived from ctx.
func Submit[T any](p *Pool, ctx context.Context,
	f func(context.Context) (T, error)) (*Task[T], error) {

	task := newTask(ctx, p.taskID.Add(1), f)
	if err := p.enqueue(task); err != nil {
		task.cancel()
		return nil, err
	}

	return task, nil
}

// enqueue registers the task as pending, starts a worker if needed and hands
// the task to the queue.
func (p *Pool) enqueue(task runnable) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrPoolStopped
	}

	p.pending[task.taskID()] = task
	p.metrics.queued.Inc()

	// Spawn while below the core size, or when the queued tasks
	// outnumber the idle workers and there is room to grow.
	if p.workers < p.cfg.CorePoolSize ||
		(len(p.pending) > p.idle && p.workers < p.cfg.MaxPoolSize) {

		p.spawnLocked()
	}
	p.mu.Unlock()

	select {
	case p.queue.ChanIn() <- task:
		return nil

	case <-p.quit:
		return ErrPoolStopped
	}
}

// spawnLocked starts a new worker.  The caller must hold mu.
func (p *Pool) spawnLocked() {
	p.workerID++
	name := p.cfg.NamePrefix + "-" + strconv.FormatUint(p.workerID, 10)

	p.workers++
	p.metrics.workers.Inc()

	log.Debugf("Spawning worker %s (%d/%d)", name, p.workers,
		p.cfg.MaxPoolSize)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		labels := pprof.Labels("pool", p.cfg.NamePrefix, "worker", name)
		pprof.Do(context.Background(), labels, func(context.Context) {
			p.worker(name)
		})
	}()
}

// worker takes tasks off the queue until the pool stops or, for workers above
// the core size, until it has been idle for the keepalive period.
func (p *Pool) worker(name string) {
	for {
		// Queued tasks are left for Stop to fail once quit is closed.
		select {
		case <-p.quit:
			p.mu.Lock()
			p.workers--
			p.mu.Unlock()

			p.metrics.workers.Dec()
			return
		default:
		}

		p.mu.Lock()
		p.idle++
		extra := p.workers > p.cfg.CorePoolSize
		p.mu.Unlock()

		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if extra {
			timer = time.NewTimer(p.cfg.KeepAlive)
			timeout = timer.C
		}

		select {
		case item := <-p.queue.ChanOut():
			if timer != nil {
				timer.Stop()
			}

			p.mu.Lock()
			p.idle--
			p.mu.Unlock()

			p.execute(name, item.(runnable))

		case <-timeout:
			// A worker never retires while tasks are pending.
			p.mu.Lock()
			p.idle--
			if p.workers > p.cfg.CorePoolSize &&
				len(p.pending) == 0 {
				p.workers--
				p.mu.Unlock()

				p.metrics.workers.Dec()
				log.Debugf("Worker %s idle for %v, exiting",
					name, p.cfg.KeepAlive)
				return
			}
			p.mu.Unlock()

		case <-p.quit:
			if timer != nil {
				timer.Stop()
			}

			p.mu.Lock()
			p.idle--
			p.workers--
			p.mu.Unlock()

			p.metrics.workers.Dec()
			return
		}
	}
}

// execute runs a dequeued task and records its outcome.
func (p *Pool) execute(name string, task runnable) {
	p.mu.Lock()
	delete(p.pending, task.taskID())
	p.mu.Unlock()
	p.metrics.queued.Dec()

	p.metrics.active.Inc()
	start := time.Now()
	ran, err := task.run(name)
	p.metrics.active.Dec()

	if !ran {
		log.Tracef("Worker %s skipped completed task %d", name,
			task.taskID())
		return
	}

	p.metrics.duration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.failed.Add(1)
		p.metrics.failed.Inc()
		log.Debugf("Worker %s: task %d failed: %v", name,
			task.taskID(), err)
		return
	}

	p.completed.Add(1)
	p.metrics.completed.Inc()
	log.Tracef("Worker %s: task %d done in %v", name, task.taskID(),
		time.Since(start))
}

// pickNoun returns the singular or plural form of a noun depending
// on the count n.
func pickNoun(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
