// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/txprep/wallet/txauthor"
	"github.com/stretchr/testify/require"
)

func TestSnapshotIsolation(t *testing.T) {
	t.Parallel()

	utxos := []txauthor.UTXO{testUTXO(1, 500000), testUTXO(2, 300000)}
	utxos[0].PkScript = []byte{0x00, 0x14}

	snap := NewSnapshot(100, utxos)
	require.Equal(t, int32(100), snap.Height())
	require.Equal(t, 2, snap.Len())

	// Changing the caller's slice does not reach the snapshot.
	utxos[0].Value = 1
	utxos[0].PkScript[0] = 0xff
	got := snap.UTXOs()
	require.Equal(t, btcutil.Amount(500000), got[0].Value)
	require.Equal(t, []byte{0x00, 0x14}, got[0].PkScript)

	// Neither does changing a returned copy.
	got[1].Value = 1
	require.Equal(t, btcutil.Amount(300000), snap.UTXOs()[1].Value)
}

func TestSnapshotSpendableBalance(t *testing.T) {
	t.Parallel()

	locked := testUTXO(3, 200000)
	locked.Spendable = false

	snap := NewSnapshot(1, []txauthor.UTXO{
		testUTXO(1, 500000), testUTXO(2, 300000), locked,
	})
	require.Equal(t, btcutil.Amount(800000), snap.SpendableBalance())
}

func TestSnapshotStore(t *testing.T) {
	t.Parallel()

	var store SnapshotStore

	_, err := store.Current()
	require.ErrorIs(t, err, ErrNoSnapshot)

	first := NewSnapshot(1, []txauthor.UTXO{testUTXO(1, 500000)})
	store.Publish(first)
	got, err := store.Current()
	require.NoError(t, err)
	require.Same(t, first, got)

	// Publishing replaces the current snapshot without touching the old
	// one.
	second := NewSnapshot(2, nil)
	store.Publish(second)
	got, err = store.Current()
	require.NoError(t, err)
	require.Same(t, second, got)
	require.Equal(t, 1, first.Len())
}
