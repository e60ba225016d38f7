// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

// TestTestnet4Genesis verifies the testnet4 genesis block against
// https://mempool.space/testnet4/block/00000000da84f2bafbbc53dee25a72ae507ff4914b867c565be350b0da8bf043
func TestTestnet4Genesis(t *testing.T) {
	require.Equal(t, testNet4GenesisBlock.BlockHash().String(),
		"00000000da84f2bafbbc53dee25a72ae507ff4914b867c565be350b0da8bf043")
	require.Equal(t, testNet4GenesisBlock.Header.MerkleRoot.String(),
		"7aa0a7ae1e223414cb807e40cd57e667b718e42aaf9306db9102fe28912b7b4e")
}

func TestTestnet4Address(t *testing.T) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		make([]byte, 20), &TestNet4ChainParams,
	)
	require.NoError(t, err)

	decoded, err := btcutil.DecodeAddress(
		addr.EncodeAddress(), &TestNet4ChainParams,
	)
	require.NoError(t, err)
	require.True(t, decoded.IsForNet(&TestNet4ChainParams))
}

func TestByName(t *testing.T) {
	params, err := ByName("Testnet")
	require.NoError(t, err)
	require.Same(t, &TestNet3Params, params)

	params, err = ByName("testnet4")
	require.NoError(t, err)
	require.Equal(t, "testnet4", params.Name)

	_, err = ByName("litecoin")
	require.Error(t, err)

	require.Equal(t, []string{
		"mainnet", "regtest", "simnet", "testnet3", "testnet4",
	}, Names())
}
