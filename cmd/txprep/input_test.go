// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/txprep/keypath"
	"github.com/stretchr/testify/require"
)

const testTxID = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

func TestDecodeSnapshot(t *testing.T) {
	t.Parallel()

	snap, err := decodeSnapshot([]byte(`{
		"height": 800000,
		"utxos": [
			{"txid": "` + testTxID + `", "vout": 1, "value": 500000,
			 "path": "m/84'/0'/0'/0/1", "pkscript": "0014aabb"},
			{"txid": "` + testTxID + `", "vout": 2, "value": 300000,
			 "path": "m/84h/0h/0h/0/2", "spendable": false}
		]
	}`))
	require.NoError(t, err)
	require.Equal(t, int32(800000), snap.Height())

	utxos := snap.UTXOs()
	require.Len(t, utxos, 2)
	require.Equal(t, testTxID, utxos[0].OutPoint.Hash.String())
	require.Equal(t, uint32(1), utxos[0].OutPoint.Index)
	require.Equal(t, btcutil.Amount(500000), utxos[0].Value)
	require.Equal(t, keypath.MustParsePath("m/84'/0'/0'/0/1"),
		utxos[0].Path)
	require.Equal(t, []byte{0x00, 0x14, 0xaa, 0xbb}, utxos[0].PkScript)
	require.True(t, utxos[0].Spendable)
	require.False(t, utxos[1].Spendable)
	require.Equal(t, btcutil.Amount(500000), snap.SpendableBalance())
}

func TestDecodeSnapshotErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `utxos`},
		{name: "unknown field", doc: `{"utxo": []}`},
		{
			name: "bad txid",
			doc:  `{"utxos": [{"txid": "zz", "path": "m/0"}]}`,
		},
		{
			name: "bad path",
			doc: `{"utxos": [{"txid": "` + testTxID + `",
				"path": "m/x"}]}`,
		},
		{
			name: "bad pkscript",
			doc: `{"utxos": [{"txid": "` + testTxID + `",
				"path": "m/0", "pkscript": "0g"}]}`,
		},
	}

	for _, test := range tests {
		_, err := decodeSnapshot([]byte(test.doc))
		require.Error(t, err, test.name)
	}
}

func TestDecodeIntents(t *testing.T) {
	t.Parallel()

	single, err := decodeIntents([]byte(`{
		"outputs": [{"address": "bc1qexample", "amount": 600000}],
		"feetier": "normal", "locktime": 800000
	}`))
	require.NoError(t, err)
	require.Len(t, single, 1)
	require.Equal(t, "normal", single[0].FeeTier)
	require.Equal(t, int32(800000), single[0].LockTime)
	require.Equal(t, btcutil.Amount(600000), single[0].Outputs[0].Value)
	require.Equal(t, "bc1qexample", single[0].Outputs[0].Recipient)

	many, err := decodeIntents([]byte(` [
		{"outputs": [{"address": "a", "amount": 1}], "feetier": "slow"},
		{"outputs": [{"address": "b", "amount": 2}], "feetier": "fast",
		 "version": 1}
	]`))
	require.NoError(t, err)
	require.Len(t, many, 2)
	require.Equal(t, "fast", many[1].FeeTier)
	require.Equal(t, int32(1), many[1].Version)

	_, err = decodeIntents([]byte(`[{"outputs": 1}]`))
	require.Error(t, err)
}

func TestLoadIntents(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "first.json")
	second := filepath.Join(dir, "second.json")
	require.NoError(t, os.WriteFile(first, []byte(
		`{"outputs": [{"address": "a", "amount": 1}], "feetier": "slow"}`,
	), 0o600))
	require.NoError(t, os.WriteFile(second, []byte(
		`[{"outputs": [{"address": "b", "amount": 2}]}]`,
	), 0o600))

	intents, err := loadIntents([]string{first, second})
	require.NoError(t, err)
	require.Len(t, intents, 2)
	require.Equal(t, "a", intents[0].Outputs[0].Recipient)
	require.Equal(t, "b", intents[1].Outputs[0].Recipient)

	_, err = loadIntents([]string{filepath.Join(dir, "missing.json")})
	require.Error(t, err)
}
