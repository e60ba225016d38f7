// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package unit provides a set of types for dealing with bitcoin units.
package unit

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	// SatsPerKilo is the number of satoshis in a kilo-satoshi.
	SatsPerKilo = 1000
)

// WeightUnit defines a unit to express the transaction size. One weight unit
// is 1/4_000_000 of the max block size.
type WeightUnit uint64

// ToVB converts a value expressed in weight units to virtual bytes, rounding
// up as required by BIP141.
func (wu WeightUnit) ToVB() VByte {
	return VByte((uint64(wu) + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor)
}

// String returns the string representation of the weight unit.
func (wu WeightUnit) String() string {
	return fmt.Sprintf("%d wu", uint64(wu))
}

// VByte defines a unit to express the transaction size. One virtual byte is
// four weight units.
type VByte uint64

// String returns the string representation of the virtual byte.
func (vb VByte) String() string {
	return fmt.Sprintf("%d vb", uint64(vb))
}

// SatPerVByte represents a fee rate in sat/vb.
type SatPerVByte btcutil.Amount

// FeePerKVByte converts the current fee rate from sat/vb to sat/kvb.
func (s SatPerVByte) FeePerKVByte() SatPerKVByte {
	return SatPerKVByte(s * SatsPerKilo)
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	return fmt.Sprintf("%d sat/vb", int64(s))
}

// SatPerKVByte represents a fee rate in sat/kvb. This is the rate the fee
// estimator works in, since it allows sub-satoshi per-byte rates while staying
// in integer arithmetic.
type SatPerKVByte btcutil.Amount

// NewSatPerKVByte creates a new fee rate in sat/kvb from the given fee and
// size.
func NewSatPerKVByte(fee btcutil.Amount, vb VByte) SatPerKVByte {
	if vb == 0 {
		return 0
	}

	return SatPerKVByte(int64(fee) * SatsPerKilo /
		safeUint64ToInt64(uint64(vb)))
}

// FeeForVSize calculates the fee resulting from this fee rate and the given
// vsize in vbytes. The result is rounded up to the next whole satoshi so a
// transaction never pays less than the rate asks for.
func (s SatPerKVByte) FeeForVSize(vbytes VByte) btcutil.Amount {
	size := safeUint64ToInt64(uint64(vbytes))
	if s <= 0 || size == 0 {
		return 0
	}

	// Guard the multiplication, anything this large is far beyond the
	// money supply anyway.
	if int64(s) > math.MaxInt64/size {
		return btcutil.MaxSatoshi
	}

	fee := (int64(s)*size + SatsPerKilo - 1) / SatsPerKilo

	return btcutil.Amount(fee)
}

// String returns a human-readable string of the fee rate.
func (s SatPerKVByte) String() string {
	return fmt.Sprintf("%d sat/kvb", int64(s))
}

// safeUint64ToInt64 converts a uint64 to an int64, capping at math.MaxInt64.
// In practice the values being converted are transaction weights or sizes,
// which are limited by consensus rules and are not expected to overflow.
func safeUint64ToInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(u)
}
