// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/txprep/wallet"
	"github.com/btcsuite/txprep/wallet/txauthor"
	"github.com/btcsuite/txprep/wallet/txsizes"
)

// internalBranch is the BIP0044 branch used for change addresses.
const internalBranch = 1

// changeSource returns the change address provider configured by cfg.  A
// fixed --changeaddr wins over derivation from --xpub.
func changeSource(cfg *config) (wallet.ChangeSource, error) {
	if cfg.ChangeAddr != "" {
		addr := cfg.ChangeAddr
		return wallet.ChangeSourceFunc(
			func(context.Context) (string, error) {
				return addr, nil
			},
		), nil
	}

	account := cfg.keyring[0]
	path := account.Path().Child(internalBranch).Child(cfg.ChangeIndex)
	pubKey, err := account.PubKey(path)
	if err != nil {
		return nil, fmt.Errorf("unable to derive change key %v: %w",
			path, err)
	}

	addr, err := addressForModel(pubKey, cfg.sizeModel, cfg.params.Params)
	if err != nil {
		return nil, err
	}

	log.Infof("Using change address %v derived at %v", addr, path)

	encoded := addr.EncodeAddress()
	return wallet.ChangeSourceFunc(func(context.Context) (string, error) {
		return encoded, nil
	}), nil
}

// addressForModel returns the address of pubKey with the script type the size
// model describes.
func addressForModel(pubKey *btcec.PublicKey, model txsizes.Model,
	params *chaincfg.Params) (btcutil.Address, error) {

	switch model {
	case txsizes.P2TRModel:
		tapKey := txscript.ComputeTaprootKeyNoScript(pubKey)
		return btcutil.NewAddressTaproot(
			schnorr.SerializePubKey(tapKey), params,
		)

	case txsizes.P2PKHModel:
		return btcutil.NewAddressPubKeyHash(
			btcutil.Hash160(pubKey.SerializeCompressed()), params,
		)

	default:
		return btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(pubKey.SerializeCompressed()), params,
		)
	}
}

// keyFingerprint returns the BIP0032 master key fingerprint recorded in PSBT
// derivations, whose paths start at the master key.  Without
// --masterfingerprint only the account key is known, so its own fingerprint
// is used, which is correct only when the account key is the master key.
func keyFingerprint(cfg *config) uint32 {
	if cfg.masterFingerprint.IsSome() {
		return cfg.masterFingerprint.UnwrapOr(0)
	}
	if len(cfg.keyring) == 0 {
		return 0
	}

	account := cfg.keyring[0]
	pubKey, err := account.PubKey(account.Path())
	if err != nil {
		return 0
	}

	if !account.Path().IsEmpty() {
		log.Warnf("No --masterfingerprint set, recording the fingerprint "+
			"of the account key at %v in PSBT derivations",
			account.Path())
	}

	hash := btcutil.Hash160(pubKey.SerializeCompressed())
	return binary.LittleEndian.Uint32(hash[:4])
}

// parseFingerprint decodes a hex BIP0032 fingerprint into the little endian
// form PSBT derivations carry.
func parseFingerprint(s string) (uint32, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, fmt.Errorf("fingerprint must be 4 bytes, got %d",
			len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

// keySource returns the public key source used for PSBT derivations, or nil
// without an account key.
func keySource(cfg *config) txauthor.PubKeySource {
	if len(cfg.keyring) == 0 {
		return nil
	}
	return cfg.keyring
}
