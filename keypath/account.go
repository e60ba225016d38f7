// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keypath

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

var (
	// ErrNotDescendant is returned when a path is not below the account
	// key's path.
	ErrNotDescendant = errors.New("path is not below the account key")

	// ErrHardenedChild is returned when deriving below an account key
	// would require a hardened step, which a public key cannot perform.
	ErrHardenedChild = errors.New("cannot derive hardened child from " +
		"public key")

	// ErrPathMismatch is returned when the key derived from a path does not
	// control the output script it was recorded against.
	ErrPathMismatch = errors.New("derivation path does not match output " +
		"script")

	// ErrNoAccount is returned by a Keyring when no account key covers a
	// path.
	ErrNoAccount = errors.New("no account key for path")

	// ErrInvalidPublicKey is returned for malformed public key material.
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// PublicKey is the raw material of an extended public key: a compressed
// secp256k1 public key and its BIP32 chain code.
type PublicKey struct {
	Key       []byte
	ChainCode []byte
}

// AccountKey is an account-level extended public key, e.g. m/84'/0'/0', from
// which the non-hardened keys of the account can be derived.
type AccountKey struct {
	path   Path
	xpub   *hdkeychain.ExtendedKey
	params *chaincfg.Params
}

// NewAccountKey creates an account key located at path from raw public key
// material.
func NewAccountKey(path Path, pub PublicKey,
	params *chaincfg.Params) (*AccountKey, error) {

	if _, err := btcec.ParsePubKey(pub.Key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(pub.ChainCode) != 32 {
		return nil, fmt.Errorf("%w: chain code is %d bytes",
			ErrInvalidPublicKey, len(pub.ChainCode))
	}
	if path.Len() > 255 {
		return nil, fmt.Errorf("%w: depth %d", ErrInvalidPath,
			path.Len())
	}

	var childNum uint32
	if !path.IsEmpty() {
		childNum = path.indices[path.Len()-1]
	}

	xpub := hdkeychain.NewExtendedKey(
		params.HDPublicKeyID[:], pub.Key, pub.ChainCode,
		[]byte{0, 0, 0, 0}, uint8(path.Len()), childNum, false,
	)

	return &AccountKey{path: path, xpub: xpub, params: params}, nil
}

// ParseAccountKey creates an account key located at path from a serialized
// extended key.  Private extended keys are neutered first.
func ParseAccountKey(path Path, key string,
	params *chaincfg.Params) (*AccountKey, error) {

	xkey, err := hdkeychain.NewKeyFromString(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if xkey.IsPrivate() {
		xkey, err = xkey.Neuter()
		if err != nil {
			return nil, err
		}
	}

	return &AccountKey{path: path, xpub: xkey, params: params}, nil
}

// Path returns the location of the account key.
func (a *AccountKey) Path() Path {
	return a.path
}

// PubKey derives the public key at the given absolute path.
func (a *AccountKey) PubKey(path Path) (*btcec.PublicKey, error) {
	if !path.HasPrefix(a.path) {
		return nil, fmt.Errorf("%w: %v not below %v", ErrNotDescendant,
			path, a.path)
	}

	key := a.xpub
	for _, idx := range path.indices[a.path.Len():] {
		if idx >= HardenedKeyStart {
			return nil, fmt.Errorf("%w: %v", ErrHardenedChild, path)
		}

		var err error
		key, err = key.Derive(idx)
		if err != nil {
			return nil, err
		}
	}

	return key.ECPubKey()
}

// CheckPath verifies that the key at path controls pkScript.  Pay to witness
// pubkey hash, pay to pubkey hash and key-path taproot scripts are
// recognized.
func (a *AccountKey) CheckPath(path Path, pkScript []byte) error {
	pubKey, err := a.PubKey(path)
	if err != nil {
		return err
	}

	scripts, err := candidateScripts(pubKey, a.params)
	if err != nil {
		return err
	}
	for _, script := range scripts {
		if bytes.Equal(script, pkScript) {
			return nil
		}
	}

	return fmt.Errorf("%w: %v", ErrPathMismatch, path)
}

// candidateScripts returns the output scripts a single-key wallet may have
// used for the given public key.
func candidateScripts(pubKey *btcec.PublicKey,
	params *chaincfg.Params) ([][]byte, error) {

	keyHash := btcutil.Hash160(pubKey.SerializeCompressed())

	p2wpkh, err := btcutil.NewAddressWitnessPubKeyHash(keyHash, params)
	if err != nil {
		return nil, err
	}
	p2pkh, err := btcutil.NewAddressPubKeyHash(keyHash, params)
	if err != nil {
		return nil, err
	}
	tapKey := txscript.ComputeTaprootKeyNoScript(pubKey)
	p2tr, err := btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(tapKey), params,
	)
	if err != nil {
		return nil, err
	}

	addrs := []btcutil.Address{p2wpkh, p2pkh, p2tr}
	scripts := make([][]byte, 0, len(addrs))
	for _, addr := range addrs {
		script, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script)
	}

	return scripts, nil
}

// Keyring is a set of account keys.  Paths are checked against the account
// whose path is their longest prefix.
type Keyring []*AccountKey

// account returns the account key covering path.
func (k Keyring) account(path Path) (*AccountKey, error) {
	var best *AccountKey
	for _, acct := range k {
		if !path.HasPrefix(acct.path) {
			continue
		}
		if best == nil || acct.path.Len() > best.path.Len() {
			best = acct
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAccount, path)
	}
	return best, nil
}

// PubKey derives the public key at path from the covering account.
func (k Keyring) PubKey(path Path) (*btcec.PublicKey, error) {
	acct, err := k.account(path)
	if err != nil {
		return nil, err
	}
	return acct.PubKey(path)
}

// CheckPath verifies path against pkScript using the covering account.
func (k Keyring) CheckPath(path Path, pkScript []byte) error {
	acct, err := k.account(path)
	if err != nil {
		return err
	}
	return acct.CheckPath(path, pkScript)
}
