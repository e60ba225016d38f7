// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/txprep/wallet/txauthor"
)

// ErrNoSnapshot is returned when no UTXO snapshot has been published yet.
var ErrNoSnapshot = errors.New("no utxo snapshot available")

// Snapshot is an immutable view of the wallet's unspent outputs at a block
// height.  Preparation reads snapshots and never modifies them.
type Snapshot struct {
	height int32
	utxos  []txauthor.UTXO
}

// NewSnapshot creates a snapshot holding a copy of utxos.
func NewSnapshot(height int32, utxos []txauthor.UTXO) *Snapshot {
	cpy := make([]txauthor.UTXO, len(utxos))
	for i, utxo := range utxos {
		cpy[i] = utxo
		cpy[i].PkScript = append([]byte(nil), utxo.PkScript...)
	}

	return &Snapshot{height: height, utxos: cpy}
}

// Height returns the block height the snapshot was taken at.
func (s *Snapshot) Height() int32 {
	return s.height
}

// UTXOs returns a copy of the snapshot's outputs.
func (s *Snapshot) UTXOs() []txauthor.UTXO {
	utxos := make([]txauthor.UTXO, len(s.utxos))
	copy(utxos, s.utxos)
	return utxos
}

// Len returns the number of outputs in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.utxos)
}

// SpendableBalance returns the total value of the spendable outputs.
func (s *Snapshot) SpendableBalance() btcutil.Amount {
	var total btcutil.Amount
	for _, utxo := range s.utxos {
		if utxo.Spendable {
			total += utxo.Value
		}
	}
	return total
}

// SnapshotStore holds the current snapshot.  The synchronization layer
// publishes a new snapshot on every change instead of mutating the old one,
// so readers never need a lock.
type SnapshotStore struct {
	current atomic.Pointer[Snapshot]
}

// Publish makes snap the current snapshot.
func (s *SnapshotStore) Publish(snap *Snapshot) {
	s.current.Store(snap)

	log.Debugf("Published utxo snapshot at height %d with %d %s",
		snap.Height(), snap.Len(), pickNoun(snap.Len(), "output",
			"outputs"))
}

// Current returns the most recently published snapshot.
func (s *SnapshotStore) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}
