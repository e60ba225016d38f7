// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txauthor

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/txprep/keypath"
)

// PubKeySource derives the public key at a derivation path.
type PubKeySource interface {
	PubKey(path keypath.Path) (*btcec.PublicKey, error)
}

// MsgTx returns the unsigned wire transaction described by tx.  Recipient
// addresses are decoded for the given network.
//
// A non-zero lock time is only enforced by consensus when at least one input
// has a non-final sequence number, so inputs then use MaxTxInSequenceNum-1.
func (tx *PreparedTx) MsgTx(params *chaincfg.Params) (*wire.MsgTx, error) {
	msgTx := wire.NewMsgTx(tx.version)
	msgTx.LockTime = uint32(tx.lockTime)

	sequence := uint32(wire.MaxTxInSequenceNum)
	if tx.lockTime != 0 {
		sequence = wire.MaxTxInSequenceNum - 1
	}

	for _, in := range tx.inputs {
		outPoint := in.OutPoint
		txIn := wire.NewTxIn(&outPoint, nil, nil)
		txIn.Sequence = sequence
		msgTx.AddTxIn(txIn)
	}

	for i, out := range tx.outputs {
		pkScript, err := PayToRecipientScript(out.Recipient, params)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		msgTx.AddTxOut(wire.NewTxOut(int64(out.Value), pkScript))
	}

	return msgTx, nil
}

// PayToRecipientScript decodes an address for the given network and returns
// the script paying to it.
func PayToRecipientScript(recipient string,
	params *chaincfg.Params) ([]byte, error) {

	addr, err := btcutil.DecodeAddress(recipient, params)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", recipient, err)
	}
	if !addr.IsForNet(params) {
		return nil, fmt.Errorf("recipient %q is not for network %s",
			recipient, params.Name)
	}

	return txscript.PayToAddrScript(addr)
}

// Packet returns a PSBT for the transaction, ready for an external signer.
// Witness inputs carry their previous output, and every input carries a
// BIP32 derivation for its path when keys is non-nil.
func (tx *PreparedTx) Packet(params *chaincfg.Params, keys PubKeySource,
	fingerprint uint32) (*psbt.Packet, error) {

	msgTx, err := tx.MsgTx(params)
	if err != nil {
		return nil, err
	}

	packet, err := psbt.NewFromUnsignedTx(msgTx)
	if err != nil {
		return nil, err
	}

	for i, in := range tx.inputs {
		pInput := &packet.Inputs[i]

		if txscript.IsWitnessProgram(in.PkScript) {
			pInput.WitnessUtxo = wire.NewTxOut(
				int64(in.Value), in.PkScript,
			)
		}

		if keys == nil {
			continue
		}

		pubKey, err := keys.PubKey(in.Path)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}

		if txscript.IsPayToTaproot(in.PkScript) {
			xOnly := schnorr.SerializePubKey(pubKey)
			pInput.TaprootInternalKey = xOnly
			pInput.TaprootBip32Derivation = []*psbt.TaprootBip32Derivation{{
				XOnlyPubKey:          xOnly,
				MasterKeyFingerprint: fingerprint,
				Bip32Path:            in.Path.Indices(),
			}}
			continue
		}

		pInput.Bip32Derivation = []*psbt.Bip32Derivation{{
			PubKey:               pubKey.SerializeCompressed(),
			MasterKeyFingerprint: fingerprint,
			Bip32Path:            in.Path.Indices(),
		}}
	}

	return packet, nil
}
