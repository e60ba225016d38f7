// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feetier

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
)

// ErrInvalidJitter is returned for a non-positive duration or a jitter
// scaler outside [0, 1).
var ErrInvalidJitter = errors.New("invalid jitter ticker parameters")

// JitterTicker is a ticker.Ticker whose interval is drawn uniformly from
// [duration*(1-scaler), duration*(1+scaler)] before every tick.  It spreads
// the refreshes of many rate caches polling the same estimator.
type JitterTicker struct {
	// c receives ticks.  Ticks are dropped if the reader is behind.
	c chan time.Time

	// duration is the base duration of the ticker.
	duration time.Duration

	// min and max bound the drawn interval, in nanoseconds.  min is
	// always positive since the scaler is below 1.
	min int64
	max int64

	mu     sync.Mutex
	rng    *rand.Rand
	active bool
	pause  chan struct{}
	wg     sync.WaitGroup
}

// A compile-time assertion to ensure JitterTicker meets the ticker.Ticker
// interface.
var _ ticker.Ticker = (*JitterTicker)(nil)

// NewJitterTicker returns a paused JitterTicker.  Resume must be called to
// start it.  The scaler must lie in [0, 1) so no interval collapses to zero.
func NewJitterTicker(d time.Duration, scaler float64) (*JitterTicker,
	error) {

	if d <= 0 || scaler < 0 || scaler >= 1 {
		return nil, ErrInvalidJitter
	}

	min, max := calculateMinMax(d, scaler)
	if min <= 0 {
		return nil, ErrInvalidJitter
	}

	return &JitterTicker{
		c:        make(chan time.Time, 1),
		duration: d,
		min:      min,
		max:      max,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// calculateMinMax calculates the min and max duration values.
func calculateMinMax(d time.Duration, scaler float64) (int64, int64) {
	min := math.Floor(float64(d) * (1 - scaler))
	max := math.Ceil(float64(d) * (1 + scaler))

	return int64(min), int64(max)
}

// Ticks returns the channel ticks are delivered on.
func (jt *JitterTicker) Ticks() <-chan time.Time {
	return jt.c
}

// Resume starts or resumes the delivery of ticks.
func (jt *JitterTicker) Resume() {
	jt.mu.Lock()
	defer jt.mu.Unlock()

	if jt.active {
		return
	}
	jt.active = true
	jt.pause = make(chan struct{})

	jt.wg.Add(1)
	go jt.run(jt.pause)
}

// Pause suspends the delivery of ticks until Resume is called.
func (jt *JitterTicker) Pause() {
	jt.mu.Lock()
	if !jt.active {
		jt.mu.Unlock()
		return
	}
	jt.active = false
	close(jt.pause)
	jt.mu.Unlock()

	jt.wg.Wait()
}

// Stop stops the ticker.  It is equivalent to Pause.
func (jt *JitterTicker) Stop() {
	jt.Pause()
}

func (jt *JitterTicker) run(pause chan struct{}) {
	defer jt.wg.Done()

	timer := time.NewTimer(jt.next())
	defer timer.Stop()

	for {
		select {
		case t := <-timer.C:
			timer.Reset(jt.next())

			select {
			case jt.c <- t:
			default:
			}

		case <-pause:
			return
		}
	}
}

// next returns a random duration between the min and max values.
func (jt *JitterTicker) next() time.Duration {
	if jt.max == jt.min {
		return jt.duration
	}

	jt.mu.Lock()
	d := jt.rng.Int63n(jt.max-jt.min) + jt.min
	jt.mu.Unlock()

	return time.Duration(d)
}
