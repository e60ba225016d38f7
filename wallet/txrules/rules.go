// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txrules

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/txprep/pkg/unit"
	"github.com/btcsuite/txprep/wallet/txsizes"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// DefaultRelayFeePerKb is the default minimum relay fee policy for a mempool.
const DefaultRelayFeePerKb btcutil.Amount = 1e3

// spendInputSize is the size of a transaction input redeeming a compressed
// P2PKH output, used as the cost of spending an output later on.  The
// average size is used rather than the largest possible.
const spendInputSize = 148

// DefaultDustThreshold is the smallest non-dust value of a P2WPKH output at
// the default relay fee.
var DefaultDustThreshold = DustThreshold(
	txsizes.P2WPKHPkScriptSize, DefaultRelayFeePerKb,
)

// Transaction rule violations
var (
	ErrAmountNegative   = errors.New("transaction output amount is negative")
	ErrAmountExceedsMax = errors.New("transaction output amount exceeds maximum value")
	ErrOutputIsDust     = errors.New("transaction output is dust")

	// ErrNegativeChange is returned when the selected input value does not
	// cover the target and fee.  The selector guarantees coverage, so this
	// always indicates a defect rather than a user error.
	ErrNegativeChange = errors.New("change value is negative")
)

// IsDustAmount determines whether a transaction output value and script length
// would cause the output to be considered dust.  Transactions with dust
// outputs are not standard and are rejected by mempools with default policies.
func IsDustAmount(amount btcutil.Amount, scriptSize int,
	relayFeePerKb btcutil.Amount) bool {

	return amount < DustThreshold(scriptSize, relayFeePerKb)
}

// DustThreshold returns the smallest output value with the given script size
// that is not dust at the given relay fee.  Dust is an output whose value is
// less than three times the relay fee of creating and later spending it.
func DustThreshold(scriptSize int, relayFeePerKb btcutil.Amount) btcutil.Amount {
	if relayFeePerKb <= 0 {
		return 0
	}

	num := int64(relayFeePerKb) * 3 * spendCost(scriptSize)

	return btcutil.Amount((num + 999) / 1000)
}

// spendCost is the serialized size of an output with the given script size
// plus the input that will later redeem it.
func spendCost(scriptSize int) int64 {
	return int64(8 + wire.VarIntSerializeSize(uint64(scriptSize)) +
		scriptSize + spendInputSize)
}

// CheckOutput performs simple consensus and policy tests on an output value
// using an explicit dust threshold.
func CheckOutput(amount, dust btcutil.Amount) error {
	if amount < 0 {
		return ErrAmountNegative
	}
	if amount > btcutil.MaxSatoshi {
		return ErrAmountExceedsMax
	}
	if amount < dust {
		return fmt.Errorf("%w: %v below %v", ErrOutputIsDust, amount,
			dust)
	}
	return nil
}

// EstimateFee calculates the fee of a transaction with the given number of
// inputs and outputs at the given fee rate.  The fee is rounded up so the
// transaction never pays less than the rate asks for.
func EstimateFee(inputCount, outputCount int, rate unit.SatPerKVByte,
	model txsizes.Model) btcutil.Amount {

	size := model.EstimateVirtualSize(inputCount, outputCount)
	fee := rate.FeeForVSize(unit.VByte(size))

	if fee < 0 || fee > btcutil.MaxSatoshi {
		fee = btcutil.MaxSatoshi
	}

	return fee
}

// ComputeChange returns the value of the change output of a transaction
// spending selected to pay target plus fee.  No change is returned when the
// remainder is zero or below the dust threshold; in the latter case the
// remainder becomes additional fee.  A negative remainder is reported as
// ErrNegativeChange.
func ComputeChange(selected, target, fee,
	dust btcutil.Amount) (fn.Option[btcutil.Amount], error) {

	change := selected - target - fee

	switch {
	case change < 0:
		return fn.None[btcutil.Amount](), fmt.Errorf("%w: selected=%v "+
			"target=%v fee=%v", ErrNegativeChange, selected, target,
			fee)

	case change == 0, change < dust:
		return fn.None[btcutil.Amount](), nil
	}

	return fn.Some(change), nil
}
