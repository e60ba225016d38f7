// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package workpool

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrPoolExists is returned when registering a second pool under a
	// name already in use.
	ErrPoolExists = errors.New("worker pool already registered")

	// ErrUnknownPool is returned when looking up an unregistered pool.
	ErrUnknownPool = errors.New("unknown worker pool")
)

// Registry holds one pool per workload class, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*Pool
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*Pool)}
}

// Register adds a pool under its name prefix and starts it.
func (r *Registry) Register(p *Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, ok := r.pools[name]; ok {
		return fmt.Errorf("%w: %s", ErrPoolExists, name)
	}

	if err := p.Start(); err != nil {
		return err
	}
	r.pools[name] = p
	r.order = append(r.order, name)

	return nil
}

// Get returns the named pool.
func (r *Registry) Get(name string) (*Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, name)
	}
	return p, nil
}

// StopAll stops every registered pool in reverse registration order and
// empties the registry.
func (r *Registry) StopAll() {
	r.mu.Lock()
	pools := r.pools
	order := r.order
	r.pools = make(map[string]*Pool)
	r.order = nil
	r.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		pools[order[i]].Stop()
	}
}
