// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txsizes provides the serialized-size model used to estimate the
// fee of a transaction before its inputs are signed.
package txsizes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/txprep/pkg/unit"
)

// Worst case script and input/output size estimates.
const (
	// RedeemP2PKHSigScriptSize is the worst case (largest) serialize size
	// of a transaction input script that redeems a compressed P2PKH output.
	// It is calculated as:
	//
	//   - OP_DATA_73
	//   - 72 bytes DER signature + 1 byte sighash
	//   - OP_DATA_33
	//   - 33 bytes serialized compressed pubkey
	RedeemP2PKHSigScriptSize = 1 + 73 + 1 + 33

	// P2PKHPkScriptSize is the size of a transaction output script that
	// pays to a compressed pubkey hash.  It is calculated as:
	//
	//   - OP_DUP
	//   - OP_HASH160
	//   - OP_DATA_20
	//   - 20 bytes pubkey hash
	//   - OP_EQUALVERIFY
	//   - OP_CHECKSIG
	P2PKHPkScriptSize = 1 + 1 + 1 + 20 + 1 + 1

	// RedeemP2PKHInputSize is the worst case (largest) serialize size of a
	// transaction input redeeming a compressed P2PKH output.  It is
	// calculated as:
	//
	//   - 32 bytes previous tx
	//   - 4 bytes output index
	//   - 1 byte compact int encoding value 108
	//   - 108 bytes signature script
	//   - 4 bytes sequence
	RedeemP2PKHInputSize = 32 + 4 + 1 + RedeemP2PKHSigScriptSize + 4

	// P2PKHOutputSize is the serialize size of a transaction output with a
	// P2PKH output script.  It is calculated as:
	//
	//   - 8 bytes output value
	//   - 1 byte compact int encoding value 25
	//   - 25 bytes P2PKH output script
	P2PKHOutputSize = 8 + 1 + P2PKHPkScriptSize

	// P2WPKHPkScriptSize is the size of a transaction output script that
	// pays to a witness pubkey hash. It is calculated as:
	//
	//   - OP_0
	//   - OP_DATA_20
	//   - 20 bytes pubkey hash
	P2WPKHPkScriptSize = 1 + 1 + 20

	// P2WPKHOutputSize is the serialize size of a transaction output with a
	// P2WPKH output script. It is calculated as:
	//
	//   - 8 bytes output value
	//   - 1 byte compact int encoding value 22
	//   - 22 bytes P2WPKH output script
	P2WPKHOutputSize = 8 + 1 + P2WPKHPkScriptSize

	// RedeemP2WPKHInputSize is the worst case size of a transaction
	// input redeeming a P2WPKH output, excluding the witness. It is
	// calculated as:
	//
	//   - 32 bytes previous tx
	//   - 4 bytes output index
	//   - 1 byte encoding empty redeem script
	//   - 4 bytes sequence
	RedeemP2WPKHInputSize = 32 + 4 + 1 + 4

	// RedeemP2WPKHInputWitnessWeight is the worst case weight of a
	// witness for spending P2WPKH outputs. It is calculated as:
	//
	//   - 1 wu compact int encoding value 2 (number of items)
	//   - 1 wu compact int encoding value 73
	//   - 72 wu DER signature + 1 wu sighash
	//   - 1 wu compact int encoding value 33
	//   - 33 wu serialized compressed pubkey
	RedeemP2WPKHInputWitnessWeight = 1 + 1 + 73 + 1 + 33

	// P2TRPkScriptSize is the size of a transaction output script that
	// pays to a taproot pubkey. It is calculated as:
	//
	//   - OP_1
	//   - OP_DATA_32
	//   - 32 bytes pubkey
	P2TRPkScriptSize = 1 + 1 + 32

	// P2TROutputSize is the serialize size of a transaction output with a
	// P2TR output script.
	P2TROutputSize = 8 + 1 + P2TRPkScriptSize

	// RedeemP2TRInputSize is the worst case size of a transaction input
	// redeeming a P2TR output, excluding the witness.
	RedeemP2TRInputSize = 32 + 4 + 1 + 4

	// RedeemP2TRInputWitnessWeight is the worst case weight of a witness
	// for spending P2TR outputs via the key path. It is calculated as:
	//
	//   - 1 wu compact int encoding value 1 (number of items)
	//   - 1 wu compact int encoding value 65
	//   - 64 wu BIP-340 schnorr signature + 1 wu sighash
	RedeemP2TRInputWitnessWeight = 1 + 1 + 65

	// baseTxOverhead is the size of the version, the lock time and the
	// single-byte compact ints counting inputs and outputs.
	baseTxOverhead = 4 + 4 + 1 + 1

	// segwitMarkerWeight is the weight of the segwit marker and flag.
	segwitMarkerWeight = 2
)

var (
	// ErrInvalidModel is returned when a size model has a non-positive
	// per-input or per-output size, or a negative overhead.
	ErrInvalidModel = errors.New("invalid size model")

	// ErrUnknownModel is returned by ModelByName for unrecognized names.
	ErrUnknownModel = errors.New("unknown size model")
)

// Model is a linear serialized-size model expressed in virtual bytes:
//
//	size = Overhead + inputs*PerInput + outputs*PerOutput
//
// The presets below are worst case estimates so a fee computed from them
// never under-pays.
type Model struct {
	// Overhead is the size of the transaction fields that do not depend
	// on the number of inputs or outputs.
	Overhead int

	// PerInput is the size added by every spent input, witness included.
	PerInput int

	// PerOutput is the size added by every output.
	PerOutput int
}

// vbytes converts a witness weight into whole virtual bytes.
func vbytes(weight int) int {
	return int(unit.WeightUnit(weight).ToVB())
}

var (
	// P2WPKHModel spends and creates native segwit v0 key-hash outputs.
	// This is the default model.
	P2WPKHModel = Model{
		Overhead: baseTxOverhead + vbytes(segwitMarkerWeight),
		PerInput: RedeemP2WPKHInputSize +
			vbytes(RedeemP2WPKHInputWitnessWeight),
		PerOutput: P2WPKHOutputSize,
	}

	// P2PKHModel spends and creates legacy compressed key-hash outputs.
	P2PKHModel = Model{
		Overhead:  baseTxOverhead,
		PerInput:  RedeemP2PKHInputSize,
		PerOutput: P2PKHOutputSize,
	}

	// P2TRModel spends taproot outputs via the key path and creates
	// taproot outputs.
	P2TRModel = Model{
		Overhead: baseTxOverhead + vbytes(segwitMarkerWeight),
		PerInput: RedeemP2TRInputSize +
			vbytes(RedeemP2TRInputWitnessWeight),
		PerOutput: P2TROutputSize,
	}
)

// ModelByName returns the preset model with the given case-insensitive name.
func ModelByName(name string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "p2wpkh":
		return P2WPKHModel, nil
	case "p2pkh":
		return P2PKHModel, nil
	case "p2tr":
		return P2TRModel, nil
	default:
		return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
}

// Validate checks that the model can produce a meaningful estimate.
func (m Model) Validate() error {
	if m.Overhead < 0 || m.PerInput <= 0 || m.PerOutput <= 0 {
		return fmt.Errorf("%w: overhead=%d input=%d output=%d",
			ErrInvalidModel, m.Overhead, m.PerInput, m.PerOutput)
	}

	return nil
}

// OutputScriptSize returns the size of the output script the model creates,
// that is PerOutput less the value and the one byte script length.
func (m Model) OutputScriptSize() int {
	if m.PerOutput < 8+1 {
		return 0
	}
	return m.PerOutput - 8 - 1
}

// EstimateVirtualSize returns a worst case virtual size estimate for a
// signed transaction with the given number of inputs and outputs. Input and
// output counts that no longer fit in a single byte compact int are charged
// for the wider encoding.
func (m Model) EstimateVirtualSize(inputCount, outputCount int) int {
	size := m.Overhead + inputCount*m.PerInput + outputCount*m.PerOutput

	// The overhead already accounts for one byte per count.
	size += wire.VarIntSerializeSize(uint64(inputCount)) - 1
	size += wire.VarIntSerializeSize(uint64(outputCount)) - 1

	return size
}
