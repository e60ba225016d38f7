// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txauthor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/txprep/pkg/unit"
	"github.com/btcsuite/txprep/wallet/txrules"
	"github.com/btcsuite/txprep/wallet/txsizes"
)

// DefaultMaxIterations bounds the number of inputs considered by a single
// selection run.
const DefaultMaxIterations = 10000

var (
	// ErrInsufficientFunds is matched by InsufficientFundsError.
	ErrInsufficientFunds = errors.New("insufficient funds available to " +
		"construct transaction")

	// ErrDuplicateUTXO is returned when the same outpoint appears twice in
	// the candidate set.
	ErrDuplicateUTXO = errors.New("duplicate utxo in candidate set")

	// ErrInvalidTarget is returned for a non-positive target amount.
	ErrInvalidTarget = errors.New("target amount must be positive")

	// ErrInvalidUTXO is returned for a candidate with an out of range
	// value.
	ErrInvalidUTXO = errors.New("invalid utxo value")

	// ErrSelectionLimit is returned when the iteration bound is reached
	// before the target is covered.
	ErrSelectionLimit = errors.New("input selection iteration limit " +
		"reached")
)

// InputSourceError describes the failure to provide enough input value from
// unspent transaction outputs to meet a target amount.  A typed error is used
// so callers can tell a funding shortfall apart from a malformed request.
type InputSourceError interface {
	error
	InputSourceError()
}

// InsufficientFundsError is returned when all candidate inputs together do
// not cover the target plus the fee of spending them.  Shortfall is the
// additional value that would have been needed.
type InsufficientFundsError struct {
	Target    btcutil.Amount
	Fee       btcutil.Amount
	Available btcutil.Amount
	Shortfall btcutil.Amount
}

// InputSourceError implements InputSourceError.
func (InsufficientFundsError) InputSourceError() {}

// Error implements the error interface.
func (e InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds available to construct "+
		"transaction: amount: %v, minimum fee: %v, available amount: "+
		"%v, shortfall: %v", e.Target, e.Fee, e.Available, e.Shortfall)
}

// Is allows errors.Is to match ErrInsufficientFunds.
func (e InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// CoinSelectionStrategy orders, shuffles or filters the eligible coins before
// they are accumulated by SelectInputs.
type CoinSelectionStrategy interface {
	// ArrangeCoins arranges the eligible coins in the order they should be
	// considered.  The passed slice may be reordered in place.
	ArrangeCoins(eligible []UTXO, rate unit.SatPerKVByte,
		model txsizes.Model) ([]UTXO, error)
}

var (
	// CoinSelectionLargest always picks the largest available utxo to add
	// to the transaction next.  Ties are broken by outpoint so the result
	// is deterministic.
	CoinSelectionLargest CoinSelectionStrategy = &LargestFirstCoinSelector{}

	// CoinSelectionRandom randomly selects the next utxo to add to the
	// transaction.  This strategy prevents the creation of ever smaller
	// utxos over time.
	CoinSelectionRandom CoinSelectionStrategy = &RandomCoinSelector{}
)

// LargestFirstCoinSelector is an implementation of the CoinSelectionStrategy
// that always selects the largest coins first.
type LargestFirstCoinSelector struct{}

// ArrangeCoins sorts the coins by value in descending order.  Coins of equal
// value are ordered by outpoint hash bytes, then output index.
func (*LargestFirstCoinSelector) ArrangeCoins(eligible []UTXO,
	_ unit.SatPerKVByte, _ txsizes.Model) ([]UTXO, error) {

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		if c := bytes.Compare(a.OutPoint.Hash[:], b.OutPoint.Hash[:]); c != 0 {
			return c < 0
		}
		return a.OutPoint.Index < b.OutPoint.Index
	})

	return eligible, nil
}

// RandomCoinSelector is an implementation of the CoinSelectionStrategy that
// selects coins at random.  Coins whose value does not pay for their own
// inclusion at the fee rate are skipped.
type RandomCoinSelector struct {
	// Rand is the source of randomness.  The global source is used when
	// nil.
	Rand *rand.Rand
}

// ArrangeCoins filters out negative yielding coins and shuffles the rest.
func (s *RandomCoinSelector) ArrangeCoins(eligible []UTXO,
	rate unit.SatPerKVByte, model txsizes.Model) ([]UTXO, error) {

	inputFee := rate.FeeForVSize(unit.VByte(model.PerInput))

	positivelyYielding := make([]UTXO, 0, len(eligible))
	for _, utxo := range eligible {
		if utxo.Value <= inputFee {
			continue
		}
		positivelyYielding = append(positivelyYielding, utxo)
	}

	shuffle := rand.Shuffle
	if s.Rand != nil {
		shuffle = s.Rand.Shuffle
	}
	shuffle(len(positivelyYielding), func(i, j int) {
		positivelyYielding[i], positivelyYielding[j] =
			positivelyYielding[j], positivelyYielding[i]
	})

	return positivelyYielding, nil
}

// SelectionPolicy configures a selection run.  The zero value selects the
// largest coins first, uses the P2WPKH size model and the default iteration
// bound.
type SelectionPolicy struct {
	// Strategy arranges candidate coins.  Defaults to
	// CoinSelectionLargest.
	Strategy CoinSelectionStrategy

	// Model estimates transaction sizes.  Defaults to
	// txsizes.P2WPKHModel.
	Model txsizes.Model

	// MaxIterations bounds the number of inputs considered.  Defaults to
	// DefaultMaxIterations.
	MaxIterations int
}

// withDefaults returns a copy of the policy with unset fields filled in.
func (p SelectionPolicy) withDefaults() SelectionPolicy {
	if p.Strategy == nil {
		p.Strategy = CoinSelectionLargest
	}
	if p.Model == (txsizes.Model{}) {
		p.Model = txsizes.P2WPKHModel
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultMaxIterations
	}
	return p
}

// SelectionResult is the outcome of a successful selection run.
type SelectionResult struct {
	// Inputs are the selected coins in selection order.
	Inputs []UTXO

	// InputTotal is the sum of the selected values.
	InputTotal btcutil.Amount

	// Fee is the fee of a transaction spending Inputs to the recipient
	// outputs plus one change output.
	Fee btcutil.Amount

	// Iterations is the number of accumulation steps taken.
	Iterations int
}

// inputState holds the current state of the transaction including all inputs
// which were selected so far.
type inputState struct {
	// rate is the fee rate used for fee calculation.
	rate unit.SatPerKVByte

	// model estimates the size of the transaction.
	model txsizes.Model

	// txFee is the fee of the current transaction state.
	txFee btcutil.Amount

	// inputTotal is the total value of all selected inputs.
	inputTotal btcutil.Amount

	// targetAmount is the amount we want to fund with the transaction not
	// including the change.
	targetAmount btcutil.Amount

	// outputCount is the number of recipient outputs.  The fee always
	// budgets for one more, the prospective change output.
	outputCount int

	// inputs is the set of coins selected so far.
	inputs []UTXO
}

// feeFor returns the fee of a transaction with the given number of inputs.
func (t *inputState) feeFor(inputCount int) btcutil.Amount {
	return txrules.EstimateFee(
		inputCount, t.outputCount+1, t.rate, t.model,
	)
}

// enoughInput returns true if the selected inputs pay for the target and the
// fee of spending them.
func (t *inputState) enoughInput() bool {
	if len(t.inputs) == 0 {
		return false
	}
	return t.inputTotal >= t.targetAmount+t.txFee
}

// add appends a coin to the selection and recomputes the fee.
func (t *inputState) add(utxo UTXO) {
	t.inputs = append(t.inputs, utxo)
	t.inputTotal += utxo.Value
	t.txFee = t.feeFor(len(t.inputs))
}

// SelectInputs chooses a subset of the spendable coins covering target plus
// the fee of a transaction with outputCount recipient outputs and a change
// output.  Coins are accumulated one at a time in the order given by the
// policy's strategy until the running total suffices.
//
// If all candidates together are not enough, an InsufficientFundsError is
// returned.  The context is checked between iterations.
func SelectInputs(ctx context.Context, utxos []UTXO, target btcutil.Amount,
	outputCount int, rate unit.SatPerKVByte,
	policy SelectionPolicy) (*SelectionResult, error) {

	if target <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, target)
	}
	policy = policy.withDefaults()

	eligible, err := eligibleCoins(utxos)
	if err != nil {
		return nil, err
	}

	eligible, err = policy.Strategy.ArrangeCoins(
		eligible, rate, policy.Model,
	)
	if err != nil {
		return nil, err
	}

	state := inputState{
		rate:         rate,
		model:        policy.Model,
		targetAmount: target,
		outputCount:  outputCount,
		inputs:       make([]UTXO, 0, len(eligible)),
	}

	var available btcutil.Amount
	for _, utxo := range eligible {
		available += utxo.Value
	}

	iterations := 0
	for _, utxo := range eligible {
		if state.enoughInput() {
			break
		}

		if iterations >= policy.MaxIterations {
			return nil, fmt.Errorf("%w: %d iterations, selected %v "+
				"of %v", ErrSelectionLimit, iterations,
				state.inputTotal, target+state.txFee)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		state.add(utxo)
		iterations++
	}

	// This check is needed to make sure our input amount suffices after
	// considering all eligible inputs.
	if !state.enoughInput() {
		fee := state.feeFor(len(eligible))
		return nil, InsufficientFundsError{
			Target:    target,
			Fee:       fee,
			Available: available,
			Shortfall: target + fee - available,
		}
	}

	return &SelectionResult{
		Inputs:     state.inputs,
		InputTotal: state.inputTotal,
		Fee:        state.txFee,
		Iterations: iterations,
	}, nil
}

// eligibleCoins returns a copy of the spendable coins.  Duplicate outpoints
// anywhere in the set and out of range values are rejected.
func eligibleCoins(utxos []UTXO) ([]UTXO, error) {
	seen := make(map[wire.OutPoint]struct{}, len(utxos))
	eligible := make([]UTXO, 0, len(utxos))
	for _, utxo := range utxos {
		if _, ok := seen[utxo.OutPoint]; ok {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateUTXO,
				utxo.OutPoint)
		}
		seen[utxo.OutPoint] = struct{}{}

		if !utxo.Spendable {
			continue
		}
		if utxo.Value <= 0 || utxo.Value > btcutil.MaxSatoshi {
			return nil, fmt.Errorf("%w: %v has value %v",
				ErrInvalidUTXO, utxo.OutPoint, utxo.Value)
		}
		eligible = append(eligible, utxo)
	}

	return eligible, nil
}
