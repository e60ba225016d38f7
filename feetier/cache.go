// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feetier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultRefreshInterval is how often a RateCache polls its source.
	DefaultRefreshInterval = time.Minute

	// DefaultFetchTimeout bounds a single fetch from the source.
	DefaultFetchTimeout = 10 * time.Second
)

// RateCacheConfig houses the dependencies of a RateCache.
type RateCacheConfig struct {
	// Source is the estimator whose rates are cached.
	Source RateSource

	// RefreshTicker signals when the source should be polled again.
	// Defaults to a ticker firing every DefaultRefreshInterval.
	RefreshTicker ticker.Ticker

	// FetchTimeout bounds a single fetch.  Defaults to
	// DefaultFetchTimeout.
	FetchTimeout time.Duration
}

// RateCache is a RateSource serving the last good table fetched from an
// underlying source.  Tables are refreshed in the background and published
// atomically, so readers never block on the estimator.
type RateCache struct {
	started sync.Once
	stopped sync.Once

	cfg RateCacheConfig

	table atomic.Pointer[RateTable]

	quit chan struct{}
	wg   sync.WaitGroup
}

// A compile-time assertion to ensure RateCache meets the RateSource
// interface.
var _ RateSource = (*RateCache)(nil)

// NewRateCache creates a cache around cfg.Source.  Start must be called to
// begin polling.
func NewRateCache(cfg RateCacheConfig) (*RateCache, error) {
	if cfg.Source == nil {
		return nil, errors.New("rate cache requires a source")
	}
	if cfg.RefreshTicker == nil {
		cfg.RefreshTicker = ticker.New(DefaultRefreshInterval)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	return &RateCache{
		cfg:  cfg,
		quit: make(chan struct{}),
	}, nil
}

// Start performs an initial fetch and begins polling.  A failed initial
// fetch is logged but not fatal; FeeRates reports ErrRateUnavailable until a
// fetch succeeds.
func (c *RateCache) Start() error {
	c.started.Do(func() {
		log.Tracef("Starting fee rate cache")

		ctx, cancel := c.fetchContext()
		if err := c.Refresh(ctx); err != nil {
			log.Warnf("Unable to fetch initial fee rates: %v", err)
		}
		cancel()

		c.wg.Add(1)
		go c.poll()
	})

	return nil
}

// Stop halts polling and waits for the poller to exit.
func (c *RateCache) Stop() {
	c.stopped.Do(func() {
		log.Tracef("Stopping fee rate cache")

		close(c.quit)
		c.wg.Wait()
	})
}

// fetchContext returns a context bounded by the fetch timeout and cancelled
// when the cache stops.
func (c *RateCache) fetchContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(
		context.Background(), c.cfg.FetchTimeout,
	)
	go func() {
		select {
		case <-c.quit:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// poll refreshes the table on every tick until the cache is stopped.
func (c *RateCache) poll() {
	defer c.wg.Done()

	c.cfg.RefreshTicker.Resume()
	defer c.cfg.RefreshTicker.Stop()

	for {
		select {
		case <-c.cfg.RefreshTicker.Ticks():
			ctx, cancel := c.fetchContext()
			if err := c.Refresh(ctx); err != nil {
				log.Warnf("Unable to refresh fee rates, "+
					"keeping previous table: %v", err)
			}
			cancel()

		case <-c.quit:
			return
		}
	}
}

// Refresh fetches a new table from the source and publishes it if valid.
// The previous table stays in place on failure.
func (c *RateCache) Refresh(ctx context.Context) error {
	table, err := c.cfg.Source.FeeRates(ctx)
	if err != nil {
		return err
	}
	if err := table.Validate(); err != nil {
		return err
	}

	published := table.clone()
	c.table.Store(&published)

	log.Debugf("Fee rates updated: slow=%v normal=%v fast=%v",
		published[Slow], published[Normal], published[Fast])

	return nil
}

// FeeRates returns the last good table.  ErrRateUnavailable is returned when
// no fetch has succeeded yet.
func (c *RateCache) FeeRates(_ context.Context) (RateTable, error) {
	table := c.table.Load()
	if table == nil {
		return nil, ErrRateUnavailable
	}
	return table.clone(), nil
}
