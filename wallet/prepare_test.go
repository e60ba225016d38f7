// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/txprep/feetier"
	"github.com/btcsuite/txprep/keypath"
	"github.com/btcsuite/txprep/wallet/txauthor"
	"github.com/btcsuite/txprep/wallet/txrules"
	"github.com/btcsuite/txprep/wallet/txsizes"
	"github.com/btcsuite/txprep/workpool"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	accountPath = keypath.MustParsePath("m/84'/0'/0'/0")

	testRates = feetier.StaticRates{
		feetier.Slow:   1000,
		feetier.Normal: 10000,
		feetier.Fast:   25000,
	}

	errNoAddresses = errors.New("address pool exhausted")
)

func testUTXO(id byte, value btcutil.Amount) txauthor.UTXO {
	var hash chainhash.Hash
	for i := range hash {
		hash[i] = id
	}
	return txauthor.UTXO{
		OutPoint:  wire.OutPoint{Hash: hash, Index: uint32(id)},
		Value:     value,
		Path:      accountPath.Child(uint32(id)),
		Spendable: true,
	}
}

// testAddress returns a mainnet P2WPKH address derived from a fixed pattern.
func testAddress(t *testing.T, b byte) string {
	t.Helper()

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		bytes.Repeat([]byte{b}, 20), &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	return addr.EncodeAddress()
}

// testSnapshot holds the outputs used throughout these tests: 500000, 300000
// and 200000 satoshis.
func testSnapshot() *Snapshot {
	return NewSnapshot(800000, []txauthor.UTXO{
		testUTXO(1, 500000),
		testUTXO(2, 300000),
		testUTXO(3, 200000),
	})
}

// stateRecorder collects the states an Observer is told about.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
	err    error
}

func (r *stateRecorder) observe(state State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states = append(r.states, state)
	if err != nil {
		r.err = err
	}
}

func (r *stateRecorder) seen() []State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]State(nil), r.states...)
}

type testHarness struct {
	preparer   *Preparer
	change     *mockChangeSource
	recorder   *stateRecorder
	changeAddr string
}

func newTestHarness(t *testing.T, mutate func(*Config)) *testHarness {
	t.Helper()

	h := &testHarness{
		change:     &mockChangeSource{},
		recorder:   &stateRecorder{},
		changeAddr: testAddress(t, 0xcc),
	}
	t.Cleanup(func() { h.change.AssertExpectations(t) })

	cfg := Config{
		ChainParams:   &chaincfg.MainNetParams,
		Rates:         testRates,
		Change:        h.change,
		DustThreshold: 1000,
		Observer:      h.recorder.observe,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	p, err := New(cfg)
	require.NoError(t, err)
	h.preparer = p

	return h
}

func (h *testHarness) expectChange() {
	h.change.On("ChangeAddress", mock.Anything).Return(h.changeAddr, nil)
}

func payment(t *testing.T, value btcutil.Amount) *Intent {
	return &Intent{
		Outputs: []txauthor.Output{{
			Value: value, Recipient: testAddress(t, 0x01),
		}},
		FeeTier: "normal",
	}
}

func TestNewConfig(t *testing.T) {
	t.Parallel()

	change := ChangeSourceFunc(func(context.Context) (string, error) {
		return "", nil
	})

	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "missing params",
			cfg:  Config{Rates: testRates, Change: change},
		},
		{
			name: "missing rates",
			cfg: Config{
				ChainParams: &chaincfg.MainNetParams,
				Change:      change,
			},
		},
		{
			name: "missing change source",
			cfg: Config{
				ChainParams: &chaincfg.MainNetParams,
				Rates:       testRates,
			},
		},
		{
			name: "negative dust",
			cfg: Config{
				ChainParams:   &chaincfg.MainNetParams,
				Rates:         testRates,
				Change:        change,
				DustThreshold: -1,
			},
		},
		{
			name: "dust below relay limit",
			cfg: Config{
				ChainParams:   &chaincfg.MainNetParams,
				Rates:         testRates,
				Change:        change,
				DustThreshold: txrules.DefaultDustThreshold - 1,
			},
		},
		{
			name: "dust below taproot relay limit",
			cfg: Config{
				ChainParams:   &chaincfg.MainNetParams,
				Rates:         testRates,
				Change:        change,
				SizeModel:     txsizes.P2TRModel,
				DustThreshold: txrules.DefaultDustThreshold,
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := New(test.cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	p, err := New(Config{
		ChainParams: &chaincfg.MainNetParams,
		Rates:       testRates,
		Change:      change,
	})
	require.NoError(t, err)
	require.Equal(t, txrules.DefaultDustThreshold, p.cfg.DustThreshold)
	require.Equal(t, txauthor.CoinSelectionLargest, p.cfg.Strategy)
	require.Equal(t, txauthor.DefaultMaxIterations, p.cfg.MaxIterations)
	require.Equal(t, DefaultMaxFeeRate, p.cfg.MaxFeeRate)

	// The default dust threshold follows the output script of the model.
	p, err = New(Config{
		ChainParams: &chaincfg.MainNetParams,
		Rates:       testRates,
		Change:      change,
		SizeModel:   txsizes.P2TRModel,
	})
	require.NoError(t, err)
	require.Equal(t, txrules.DustThreshold(
		txsizes.P2TRPkScriptSize, txrules.DefaultRelayFeePerKb,
	), p.cfg.DustThreshold)
	require.Greater(t, p.cfg.DustThreshold, txrules.DefaultDustThreshold)
}

// TestPrepare checks the reference payment: 600000 satoshis at 10 sat/vB
// from outputs of 500000, 300000 and 200000.
func TestPrepare(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	h.expectChange()

	snap := testSnapshot()
	intent := payment(t, 600000)

	tx, err := h.preparer.Prepare(context.Background(), snap, intent)
	require.NoError(t, err)

	inputs := tx.Inputs()
	require.Len(t, inputs, 2)
	require.Equal(t, btcutil.Amount(500000), inputs[0].Value)
	require.Equal(t, btcutil.Amount(300000), inputs[1].Value)
	require.Equal(t, []keypath.Path{
		accountPath.Child(1), accountPath.Child(2),
	}, tx.Paths())

	require.Equal(t, btcutil.Amount(800000), tx.TotalInput())
	require.Equal(t, btcutil.Amount(2110), tx.Fee())
	require.Equal(t, DefaultTxVersion, tx.Version())
	require.Equal(t, int32(0), tx.LockTime())

	// The change output always comes last.
	require.Equal(t, 1, tx.ChangeIndex())
	require.Equal(t, []txauthor.Output{
		intent.Outputs[0],
		{Value: 197890, Recipient: h.changeAddr},
	}, tx.Outputs())

	require.Equal(t, []State{
		StateStart, StateResolvingFee, StateSelecting,
		StateComputingChange, StateAssembling, StateDone,
	}, h.recorder.seen())
	require.NoError(t, h.recorder.err)

	// Inputs and snapshot are left untouched.
	require.Equal(t, 3, snap.Len())
	require.Equal(t, btcutil.Amount(1000000), snap.SpendableBalance())
	require.Len(t, intent.Outputs, 1)
}

func TestPrepareIdempotent(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	h.expectChange()

	snap := testSnapshot()
	intent := payment(t, 600000)

	first, err := h.preparer.Prepare(context.Background(), snap, intent)
	require.NoError(t, err)
	second, err := h.preparer.Prepare(context.Background(), snap, intent)
	require.NoError(t, err)

	require.Equal(t, first, second)

	params := &chaincfg.MainNetParams
	tx1, err := first.MsgTx(params)
	require.NoError(t, err)
	tx2, err := second.MsgTx(params)
	require.NoError(t, err)
	require.Equal(t, tx1.TxHash(), tx2.TxHash())
}

func TestPrepareInsufficientFunds(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)

	_, err := h.preparer.Prepare(
		context.Background(), testSnapshot(), payment(t, 1000000),
	)
	require.ErrorIs(t, err, txauthor.ErrInsufficientFunds)

	var fundsErr txauthor.InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	require.Equal(t, btcutil.Amount(1000000), fundsErr.Available)
	require.Equal(t, btcutil.Amount(2800), fundsErr.Shortfall)

	require.Equal(t, []State{
		StateStart, StateResolvingFee, StateSelecting, StateFailed,
	}, h.recorder.seen())
	require.ErrorIs(t, h.recorder.err, txauthor.ErrInsufficientFunds)
}

// TestPrepareDustChange checks that a remainder below the dust threshold is
// added to the fee instead of creating a change output.
func TestPrepareDustChange(t *testing.T) {
	t.Parallel()

	// No change address may be requested.
	h := newTestHarness(t, nil)

	tx, err := h.preparer.Prepare(
		context.Background(), testSnapshot(), payment(t, 996500),
	)
	require.NoError(t, err)

	require.Len(t, tx.Inputs(), 3)
	require.Len(t, tx.Outputs(), 1)
	require.Equal(t, -1, tx.ChangeIndex())
	require.True(t, tx.Change().IsNone())
	require.Equal(t, btcutil.Amount(3500), tx.Fee())
}

// TestPrepareExactMatch spends all three outputs with nothing left over:
// 1000000 covers 997200 plus the 2800 fee of 3 inputs and 2 outputs at
// 10 sat/vB.  A zero remainder is a valid result without a change output.
func TestPrepareExactMatch(t *testing.T) {
	t.Parallel()

	// No change address may be requested.
	h := newTestHarness(t, nil)

	snap := testSnapshot()
	tx, err := h.preparer.Prepare(
		context.Background(), snap, payment(t, 997200),
	)
	require.NoError(t, err)

	require.Len(t, tx.Inputs(), 3)
	require.Len(t, tx.Outputs(), 1)
	require.Equal(t, -1, tx.ChangeIndex())
	require.True(t, tx.Change().IsNone())
	require.Equal(t, btcutil.Amount(2800), tx.Fee())
	require.Equal(t, snap.SpendableBalance(), tx.TotalInput())
	require.Equal(t, tx.TotalInput(),
		txauthor.SumOutputValues(tx.Outputs())+tx.Fee())
	states := h.recorder.seen()
	require.Equal(t, StateDone, states[len(states)-1])
}

func TestPrepareSkipsUnspendable(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	h.expectChange()

	locked := testUTXO(9, 5000000)
	locked.Spendable = false
	snap := NewSnapshot(1, append(testSnapshot().UTXOs(), locked))

	tx, err := h.preparer.Prepare(
		context.Background(), snap, payment(t, 600000),
	)
	require.NoError(t, err)
	for _, in := range tx.Inputs() {
		require.NotEqual(t, locked.OutPoint, in.OutPoint)
	}
}

func TestPrepareInvalidIntent(t *testing.T) {
	t.Parallel()

	testnetAddr, err := btcutil.NewAddressWitnessPubKeyHash(
		bytes.Repeat([]byte{1}, 20), &chaincfg.TestNet3Params,
	)
	require.NoError(t, err)

	tests := []struct {
		name   string
		intent func(*Intent) *Intent
		err    error
	}{
		{
			name:   "nil intent",
			intent: func(*Intent) *Intent { return nil },
			err:    ErrNilIntent,
		},
		{
			name: "no outputs",
			intent: func(i *Intent) *Intent {
				i.Outputs = nil
				return i
			},
			err: ErrNoTxOutputs,
		},
		{
			name: "undecodable recipient",
			intent: func(i *Intent) *Intent {
				i.Outputs[0].Recipient = "not-an-address"
				return i
			},
			err: ErrInvalidRecipient,
		},
		{
			name: "wrong network",
			intent: func(i *Intent) *Intent {
				i.Outputs[0].Recipient = testnetAddr.EncodeAddress()
				return i
			},
			err: ErrInvalidRecipient,
		},
		{
			name: "dust output",
			intent: func(i *Intent) *Intent {
				i.Outputs[0].Value = 999
				return i
			},
			err: txrules.ErrOutputIsDust,
		},
		{
			name: "negative output",
			intent: func(i *Intent) *Intent {
				i.Outputs[0].Value = -1
				return i
			},
			err: txrules.ErrAmountNegative,
		},
		{
			name: "unknown tier",
			intent: func(i *Intent) *Intent {
				i.FeeTier = "urgent"
				return i
			},
			err: feetier.ErrInvalidFeeTier,
		},
		{
			name: "negative lock time",
			intent: func(i *Intent) *Intent {
				i.LockTime = -1
				return i
			},
			err: ErrNegativeLockTime,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newTestHarness(t, nil)

			_, err := h.preparer.Prepare(
				context.Background(), testSnapshot(),
				test.intent(payment(t, 600000)),
			)
			require.ErrorIs(t, err, test.err)
			require.Equal(t, []State{StateStart, StateFailed},
				h.recorder.seen())
		})
	}
}

func TestPrepareNilSnapshot(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	_, err := h.preparer.Prepare(
		context.Background(), nil, payment(t, 600000),
	)
	require.ErrorIs(t, err, ErrNilSnapshot)
}

func TestPrepareRateErrors(t *testing.T) {
	t.Parallel()

	t.Run("estimator down", func(t *testing.T) {
		src := &mockRateSource{}
		src.On("FeeRates", mock.Anything).Return(
			nil, errors.New("connection refused"),
		)
		h := newTestHarness(t, func(cfg *Config) { cfg.Rates = src })

		_, err := h.preparer.Prepare(
			context.Background(), testSnapshot(),
			payment(t, 600000),
		)
		require.ErrorIs(t, err, feetier.ErrRateUnavailable)
		require.Equal(t, []State{
			StateStart, StateResolvingFee, StateFailed,
		}, h.recorder.seen())
		src.AssertExpectations(t)
	})

	t.Run("tier missing from table", func(t *testing.T) {
		h := newTestHarness(t, func(cfg *Config) {
			cfg.Rates = feetier.StaticRates{feetier.Slow: 1000}
		})

		_, err := h.preparer.Prepare(
			context.Background(), testSnapshot(),
			payment(t, 600000),
		)
		require.ErrorIs(t, err, feetier.ErrRateUnavailable)
	})

	t.Run("insane rate", func(t *testing.T) {
		h := newTestHarness(t, func(cfg *Config) {
			cfg.Rates = feetier.StaticRates{
				feetier.Normal: 2 * DefaultMaxFeeRate,
			}
		})

		_, err := h.preparer.Prepare(
			context.Background(), testSnapshot(),
			payment(t, 600000),
		)
		require.ErrorIs(t, err, ErrFeeRateTooLarge)
	})
}

func TestPrepareChangeSourceError(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	h.change.On("ChangeAddress", mock.Anything).Return("", errNoAddresses)

	_, err := h.preparer.Prepare(
		context.Background(), testSnapshot(), payment(t, 600000),
	)
	require.ErrorIs(t, err, errNoAddresses)
	require.Equal(t, []State{
		StateStart, StateResolvingFee, StateSelecting,
		StateComputingChange, StateFailed,
	}, h.recorder.seen())
}

func TestPreparePathChecker(t *testing.T) {
	t.Parallel()

	checker := &mockPathChecker{}
	h := newTestHarness(t, func(cfg *Config) { cfg.Checker = checker })
	h.expectChange()

	errForeign := errors.New("foreign key")
	checker.On("CheckPath", accountPath.Child(1), mock.Anything).
		Return(nil).Once()
	checker.On("CheckPath", accountPath.Child(2), mock.Anything).
		Return(errForeign).Once()

	_, err := h.preparer.Prepare(
		context.Background(), testSnapshot(), payment(t, 600000),
	)
	require.ErrorIs(t, err, txauthor.ErrAssemblyFailure)
	require.ErrorIs(t, err, errForeign)
	checker.AssertExpectations(t)
}

func TestPrepareCancelled(t *testing.T) {
	t.Parallel()

	t.Run("before start", func(t *testing.T) {
		h := newTestHarness(t, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := h.preparer.Prepare(
			ctx, testSnapshot(), payment(t, 600000),
		)
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, []State{StateStart, StateFailed},
			h.recorder.seen())
	})

	t.Run("during fee resolution", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		src := &mockRateSource{}
		src.On("FeeRates", mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(feetier.RateTable(testRates), nil)
		h := newTestHarness(t, func(cfg *Config) { cfg.Rates = src })

		_, err := h.preparer.Prepare(
			ctx, testSnapshot(), payment(t, 600000),
		)
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, []State{
			StateStart, StateResolvingFee, StateFailed,
		}, h.recorder.seen())
	})
}

func TestPrepareConcurrent(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, func(cfg *Config) { cfg.Observer = nil })
	h.expectChange()

	var store SnapshotStore
	store.Publish(testSnapshot())

	intent := payment(t, 600000)

	const runs = 8
	results := make([]*txauthor.PreparedTx, runs)
	errs := make([]error, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			snap, err := store.Current()
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = h.preparer.Prepare(
				context.Background(), snap, intent,
			)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, results[0], results[i])
	}
}

func TestPrepareAsync(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, func(cfg *Config) { cfg.Observer = nil })
	h.expectChange()

	pool, err := workpool.New(workpool.Config{
		CorePoolSize: 1,
		MaxPoolSize:  2,
		NamePrefix:   "prepare",
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start())
	t.Cleanup(pool.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := h.preparer.PrepareAsync(
		ctx, pool, testSnapshot(), payment(t, 600000),
	)
	require.NoError(t, err)
	short, err := h.preparer.PrepareAsync(
		ctx, pool, testSnapshot(), payment(t, 1000000),
	)
	require.NoError(t, err)

	tx, err := ok.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(2110), tx.Fee())
	require.Contains(t, ok.Worker(), "prepare-")

	_, err = short.Wait(ctx)
	require.ErrorIs(t, err, txauthor.ErrInsufficientFunds)
	require.True(t, short.Result().IsErr())
}
