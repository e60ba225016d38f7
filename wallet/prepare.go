// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/txprep/feetier"
	"github.com/btcsuite/txprep/pkg/unit"
	"github.com/btcsuite/txprep/wallet/txauthor"
	"github.com/btcsuite/txprep/wallet/txrules"
	"github.com/btcsuite/txprep/wallet/txsizes"
	"github.com/btcsuite/txprep/workpool"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrNilIntent is returned when a nil Intent is provided.
	ErrNilIntent = errors.New("nil intent")

	// ErrNilSnapshot is returned when a nil Snapshot is provided.
	ErrNilSnapshot = errors.New("nil utxo snapshot")

	// ErrNoTxOutputs is returned when an intent has no outputs.
	ErrNoTxOutputs = errors.New("tx has no outputs")

	// ErrInvalidRecipient is returned for a recipient address that does
	// not decode on the configured network.
	ErrInvalidRecipient = errors.New("invalid recipient address")

	// ErrNegativeLockTime is returned for a negative lock time.
	ErrNegativeLockTime = errors.New("lock time must not be negative")

	// ErrFeeRateTooLarge is returned when the resolved fee rate is larger
	// than the configured max allowed fee rate.
	ErrFeeRateTooLarge = errors.New("fee rate too large")

	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("invalid preparer config")
)

const (
	// DefaultMaxFeeRate is the default maximum fee rate the preparer will
	// consider sane, 1000 sat/vb.
	DefaultMaxFeeRate unit.SatPerKVByte = 1000 * 1000

	// DefaultTxVersion is the transaction version used when an intent
	// leaves it unset.
	DefaultTxVersion int32 = 2
)

// Intent describes a payment to prepare.
type Intent struct {
	// Outputs are the payments, in the order they should appear.
	Outputs []txauthor.Output

	// FeeTier names the fee urgency: slow, normal or fast.
	FeeTier string

	// Version is the transaction version.  Zero selects
	// DefaultTxVersion.
	Version int32

	// LockTime is the transaction lock time.
	LockTime int32
}

// ChangeSource provides the address that receives the change of a prepared
// transaction.  It is only consulted when a change output is needed.
type ChangeSource interface {
	ChangeAddress(ctx context.Context) (string, error)
}

// ChangeSourceFunc adapts a function to the ChangeSource interface.
type ChangeSourceFunc func(ctx context.Context) (string, error)

// ChangeAddress calls f.
func (f ChangeSourceFunc) ChangeAddress(ctx context.Context) (string, error) {
	return f(ctx)
}

// Config houses the collaborators and policy of a Preparer.
type Config struct {
	// ChainParams is the network recipients must belong to.
	ChainParams *chaincfg.Params

	// Rates supplies the fee rate table.
	Rates feetier.RateSource

	// Change supplies the change address.
	Change ChangeSource

	// SizeModel estimates transaction sizes.  Defaults to
	// txsizes.P2WPKHModel.
	SizeModel txsizes.Model

	// DustThreshold is the smallest output value worth creating.
	// Defaults to the relay dust limit of the size model's output script,
	// and may not be set below it.
	DustThreshold btcutil.Amount

	// Strategy arranges candidate coins.  Defaults to
	// txauthor.CoinSelectionLargest.
	Strategy txauthor.CoinSelectionStrategy

	// MaxIterations bounds input selection.  Defaults to
	// txauthor.DefaultMaxIterations.
	MaxIterations int

	// MaxFeeRate rejects absurd rates from the estimator.  Defaults to
	// DefaultMaxFeeRate.
	MaxFeeRate unit.SatPerKVByte

	// Checker, if set, verifies the derivation path of every input.
	Checker txauthor.PathChecker

	// Observer, if set, is told about every state of every run.
	Observer Observer
}

// Preparer turns payment intents into unsigned transactions.  A Preparer
// holds no mutable state, so Prepare may be called concurrently.
type Preparer struct {
	cfg Config
}

// New creates a Preparer, filling in defaults for unset policy fields.
func New(cfg Config) (*Preparer, error) {
	switch {
	case cfg.ChainParams == nil:
		return nil, fmt.Errorf("%w: missing chain params",
			ErrInvalidConfig)

	case cfg.Rates == nil:
		return nil, fmt.Errorf("%w: missing rate source",
			ErrInvalidConfig)

	case cfg.Change == nil:
		return nil, fmt.Errorf("%w: missing change source",
			ErrInvalidConfig)

	case cfg.DustThreshold < 0:
		return nil, fmt.Errorf("%w: negative dust threshold",
			ErrInvalidConfig)
	}

	if cfg.SizeModel == (txsizes.Model{}) {
		cfg.SizeModel = txsizes.P2WPKHModel
	}
	if err := cfg.SizeModel.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// Change is created with the model's output script, so the threshold
	// may not fall below the relay dust limit of that script.
	scriptSize := cfg.SizeModel.OutputScriptSize()
	if cfg.DustThreshold == 0 {
		cfg.DustThreshold = txrules.DustThreshold(
			scriptSize, txrules.DefaultRelayFeePerKb,
		)
	}
	if txrules.IsDustAmount(cfg.DustThreshold, scriptSize,
		txrules.DefaultRelayFeePerKb) {

		return nil, fmt.Errorf("%w: dust threshold %v is below the "+
			"relay dust limit %v", ErrInvalidConfig,
			cfg.DustThreshold, txrules.DustThreshold(
				scriptSize, txrules.DefaultRelayFeePerKb,
			))
	}
	if cfg.Strategy == nil {
		cfg.Strategy = txauthor.CoinSelectionLargest
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = txauthor.DefaultMaxIterations
	}
	if cfg.MaxFeeRate <= 0 {
		cfg.MaxFeeRate = DefaultMaxFeeRate
	}

	return &Preparer{cfg: cfg}, nil
}

// validateIntent checks an intent before any work is done.
func (p *Preparer) validateIntent(intent *Intent) error {
	if intent == nil {
		return ErrNilIntent
	}

	// The intent must have at least one output.
	if len(intent.Outputs) == 0 {
		return ErrNoTxOutputs
	}

	// Each output must pay a valid address on our network and must not
	// be dust.
	for i, output := range intent.Outputs {
		_, err := txauthor.PayToRecipientScript(
			output.Recipient, p.cfg.ChainParams,
		)
		if err != nil {
			return fmt.Errorf("%w: output %d: %v",
				ErrInvalidRecipient, i, err)
		}

		err = txrules.CheckOutput(output.Value, p.cfg.DustThreshold)
		if err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}

	if _, err := feetier.ParseTier(intent.FeeTier); err != nil {
		return err
	}

	if intent.LockTime < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeLockTime,
			intent.LockTime)
	}

	return nil
}

// Prepare builds an unsigned transaction paying intent from the outputs in
// snap.  The run either produces a complete PreparedTx or fails with no
// partial result.  Neither snap nor intent is modified, and identical
// arguments yield identical transactions.
func (p *Preparer) Prepare(ctx context.Context, snap *Snapshot,
	intent *Intent) (*txauthor.PreparedTx, error) {

	m := newStateMachine(p.cfg.Observer)

	if err := p.validateIntent(intent); err != nil {
		return nil, m.fail(err)
	}
	if snap == nil {
		return nil, m.fail(ErrNilSnapshot)
	}

	outputs := make([]txauthor.Output, len(intent.Outputs))
	copy(outputs, intent.Outputs)
	target := txauthor.SumOutputValues(outputs)

	version := intent.Version
	if version == 0 {
		version = DefaultTxVersion
	}

	// Resolve the fee rate of the requested tier.
	if err := m.advance(ctx, StateResolvingFee); err != nil {
		return nil, m.fail(err)
	}
	rate, err := p.resolveRate(ctx, intent.FeeTier)
	if err != nil {
		return nil, m.fail(err)
	}

	// Select inputs covering the target and the fee.
	if err := m.advance(ctx, StateSelecting); err != nil {
		return nil, m.fail(err)
	}
	selection, err := txauthor.SelectInputs(
		ctx, snap.utxos, target, len(outputs), rate,
		txauthor.SelectionPolicy{
			Strategy:      p.cfg.Strategy,
			Model:         p.cfg.SizeModel,
			MaxIterations: p.cfg.MaxIterations,
		},
	)
	if err != nil {
		return nil, m.fail(err)
	}

	log.Debugf("Selected %d %s totalling %v for target %v at %v "+
		"(fee %v)", len(selection.Inputs),
		pickNoun(len(selection.Inputs), "input", "inputs"),
		selection.InputTotal, target, rate, selection.Fee)

	// Work out the change, if any is worth creating.
	if err := m.advance(ctx, StateComputingChange); err != nil {
		return nil, m.fail(err)
	}
	change, err := p.changeOutput(ctx, selection, target)
	if err != nil {
		return nil, m.fail(err)
	}

	// Assemble the final transaction.
	if err := m.advance(ctx, StateAssembling); err != nil {
		return nil, m.fail(err)
	}
	tx, err := txauthor.Assemble(
		selection, outputs, change, version, intent.LockTime,
		p.cfg.Checker,
	)
	if err != nil {
		p.logInconsistency(err, selection, outputs, change)
		return nil, m.fail(err)
	}

	if err := m.advance(ctx, StateDone); err != nil {
		return nil, m.fail(err)
	}

	vsize := p.cfg.SizeModel.EstimateVirtualSize(
		len(tx.Inputs()), len(tx.Outputs()),
	)
	log.Infof("Prepared transaction spending %v to %d %s (fee %v, "+
		"effective rate %v, change index %d)", tx.TotalInput(),
		len(outputs), pickNoun(len(outputs), "recipient", "recipients"),
		tx.Fee(), unit.NewSatPerKVByte(tx.Fee(), unit.VByte(vsize)),
		tx.ChangeIndex())

	return tx, nil
}

// resolveRate fetches the rate table and resolves the named tier against
// it.
func (p *Preparer) resolveRate(ctx context.Context,
	tier string) (unit.SatPerKVByte, error) {

	table, err := p.cfg.Rates.FeeRates(ctx)
	switch {
	case errors.Is(err, feetier.ErrRateUnavailable):
		return 0, err

	case err != nil:
		return 0, fmt.Errorf("%w: %v", feetier.ErrRateUnavailable, err)
	}

	rate, err := feetier.Resolve(tier, table)
	if err != nil {
		return 0, err
	}

	// Ensure the fee rate is not "insane". This prevents users from
	// accidentally paying exorbitant fees.
	if rate > p.cfg.MaxFeeRate {
		return 0, fmt.Errorf("%w: fee rate of %v is too high, max "+
			"sane fee rate is %v", ErrFeeRateTooLarge, rate,
			p.cfg.MaxFeeRate)
	}

	return rate, nil
}

// changeOutput returns the change output of the selection, or None when the
// remainder is zero or dust.  The change address is only requested when a
// change output will be created.
func (p *Preparer) changeOutput(ctx context.Context,
	selection *txauthor.SelectionResult,
	target btcutil.Amount) (fn.Option[txauthor.Output], error) {

	none := fn.None[txauthor.Output]()

	value, err := txrules.ComputeChange(
		selection.InputTotal, target, selection.Fee,
		p.cfg.DustThreshold,
	)
	if err != nil {
		p.logInconsistency(err, selection, nil, none)
		return none, &txauthor.AssemblyError{
			Reason: "change computation", Err: err,
		}
	}

	if value.IsNone() {
		log.Debugf("Remainder %v below dust threshold %v, adding it "+
			"to the fee", selection.InputTotal-target-selection.Fee,
			p.cfg.DustThreshold)
		return none, nil
	}

	addr, err := p.cfg.Change.ChangeAddress(ctx)
	if err != nil {
		return none, fmt.Errorf("unable to obtain change address: %w",
			err)
	}
	if _, err := txauthor.PayToRecipientScript(
		addr, p.cfg.ChainParams,
	); err != nil {
		return none, fmt.Errorf("%w: change: %v", ErrInvalidRecipient,
			err)
	}

	return fn.Some(txauthor.Output{
		Value:     value.UnwrapOr(0),
		Recipient: addr,
	}), nil
}

// logInconsistency records the full context of an internal consistency
// failure.  These indicate a defect rather than bad input.
func (p *Preparer) logInconsistency(err error,
	selection *txauthor.SelectionResult, outputs []txauthor.Output,
	change fn.Option[txauthor.Output]) {

	log.Errorf("Transaction preparation failed consistency checks: %v",
		err)
	log.Debugf("Selection: %v", newLogClosure(func() string {
		return spew.Sdump(selection)
	}))
	log.Debugf("Outputs: %v, change: %v", newLogClosure(func() string {
		return spew.Sdump(outputs)
	}), newLogClosure(func() string {
		return spew.Sdump(change.UnwrapOr(txauthor.Output{}))
	}))
}

// PrepareAsync runs Prepare on pool.  Success and failure are both delivered
// through the returned task.
func (p *Preparer) PrepareAsync(ctx context.Context, pool *workpool.Pool,
	snap *Snapshot,
	intent *Intent) (*workpool.Task[*txauthor.PreparedTx], error) {

	return workpool.Submit(pool, ctx,
		func(ctx context.Context) (*txauthor.PreparedTx, error) {
			return p.Prepare(ctx, snap, intent)
		},
	)
}
