// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package workpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrTaskPanic wraps the value recovered from a panicking task.
var ErrTaskPanic = errors.New("task panicked")

// Task states.
const (
	taskPending int32 = iota
	taskRunning
	taskDone
)

// runnable is the type-erased view of a Task the pool schedules.
type runnable interface {
	taskID() uint64

	// run executes the task on the named worker.  It returns false if the
	// task had already been completed, e.g. by cancellation.
	run(worker string) (ok bool, err error)

	// fail completes a task that never ran.
	fail(err error)
}

// Task is a unit of work submitted to a Pool.  Its outcome, success or
// failure alike, is delivered exactly once through Done and Result.
type Task[T any] struct {
	id uint64

	ctx    context.Context
	cancel context.CancelFunc
	fn     func(context.Context) (T, error)

	state  atomic.Int32
	worker atomic.Value

	once   sync.Once
	result fn.Result[T]
	done   chan struct{}
}

// A compile-time assertion to ensure Task meets the runnable interface.
var _ runnable = (*Task[struct{}])(nil)

func newTask[T any](ctx context.Context, id uint64,
	f func(context.Context) (T, error)) *Task[T] {

	ctx, cancel := context.WithCancel(ctx)
	return &Task[T]{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		fn:     f,
		done:   make(chan struct{}),
	}
}

func (t *Task[T]) taskID() uint64 {
	return t.id
}

// complete records the outcome.  Only the first call has an effect.
func (t *Task[T]) complete(res fn.Result[T]) {
	t.once.Do(func() {
		t.state.Store(taskDone)
		t.result = res
		t.cancel()
		close(t.done)
	})
}

func (t *Task[T]) run(worker string) (bool, error) {
	if !t.state.CompareAndSwap(taskPending, taskRunning) {
		return false, nil
	}
	t.worker.Store(worker)

	if err := t.ctx.Err(); err != nil {
		t.complete(fn.Err[T](err))
		return true, err
	}

	var (
		val T
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
				log.Errorf("Task %d panicked on %s: %v\n%s",
					t.id, worker, r, debug.Stack())
			}
		}()
		val, err = t.fn(t.ctx)
	}()

	if err != nil {
		t.complete(fn.Err[T](err))
		return true, err
	}
	t.complete(fn.Ok(val))
	return true, nil
}

func (t *Task[T]) fail(err error) {
	if t.state.CompareAndSwap(taskPending, taskDone) {
		t.complete(fn.Err[T](err))
	}
}

// Done returns a channel closed once the task has completed.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Result blocks until the task completes and returns its outcome.
func (t *Task[T]) Result() fn.Result[T] {
	<-t.done
	return t.result
}

// Wait blocks until the task completes or ctx is done.  Abandoning the wait
// does not cancel the task.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result.Unpack()

	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel requests cancellation.  A task that has not started completes
// immediately with context.Canceled; a running task sees its context
// cancelled.
func (t *Task[T]) Cancel() {
	t.cancel()
	t.fail(context.Canceled)
}

// Worker returns the name of the worker that ran the task, or the empty
// string if it never started.
func (t *Task[T]) Worker() string {
	name, _ := t.worker.Load().(string)
	return name
}
