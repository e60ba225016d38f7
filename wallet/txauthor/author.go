// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txauthor provides transaction creation code for wallets: choosing
// which coins to spend and assembling them with the recipient and change
// outputs into an unsigned transaction description.
package txauthor

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/txprep/keypath"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrAssemblyFailure is matched by AssemblyError.
var ErrAssemblyFailure = errors.New("transaction assembly failed")

// AssemblyError is returned when the assembler finds the selection, outputs
// or derivation paths to be inconsistent.  It always indicates a defect in
// the caller rather than a lack of funds.
type AssemblyError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *AssemblyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transaction assembly failed: %s: %v",
			e.Reason, e.Err)
	}
	return "transaction assembly failed: " + e.Reason
}

// Unwrap returns the underlying cause, if any.
func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match ErrAssemblyFailure.
func (e *AssemblyError) Is(target error) bool {
	return target == ErrAssemblyFailure
}

func assemblyErr(err error, format string, args ...interface{}) error {
	return &AssemblyError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// UTXO is an unspent output owned by the wallet together with the
// derivation path of the key controlling it.
type UTXO struct {
	OutPoint  wire.OutPoint
	Value     btcutil.Amount
	Path      keypath.Path
	PkScript  []byte
	Spendable bool
}

// Output is a payment to a recipient address.
type Output struct {
	Value     btcutil.Amount
	Recipient string
}

// SumOutputValues sums up the list of outputs and returns an Amount.
func SumOutputValues(outputs []Output) (totalOutput btcutil.Amount) {
	for _, out := range outputs {
		totalOutput += out.Value
	}
	return totalOutput
}

// PreparedInput is an input of a prepared transaction.
type PreparedInput struct {
	OutPoint wire.OutPoint
	Value    btcutil.Amount
	Path     keypath.Path
	PkScript []byte
}

// PathChecker verifies that a derivation path identifies the key controlling
// an output script.
type PathChecker interface {
	CheckPath(path keypath.Path, pkScript []byte) error
}

// PreparedTx is an unsigned transaction ready to be handed to a signer.  It
// is immutable: all accessors return copies.
type PreparedTx struct {
	version     int32
	inputs      []PreparedInput
	outputs     []Output
	lockTime    int32
	fee         btcutil.Amount
	totalInput  btcutil.Amount
	changeIndex int
}

// Version returns the transaction version.
func (tx *PreparedTx) Version() int32 { return tx.version }

// LockTime returns the transaction lock time.
func (tx *PreparedTx) LockTime() int32 { return tx.lockTime }

// Fee returns the fee paid, which includes any remainder too small for a
// change output.
func (tx *PreparedTx) Fee() btcutil.Amount { return tx.fee }

// TotalInput returns the sum of the input values.
func (tx *PreparedTx) TotalInput() btcutil.Amount { return tx.totalInput }

// ChangeIndex returns the index of the change output, or -1 if there is
// none.
func (tx *PreparedTx) ChangeIndex() int { return tx.changeIndex }

// Inputs returns the inputs in spending order.
func (tx *PreparedTx) Inputs() []PreparedInput {
	inputs := make([]PreparedInput, len(tx.inputs))
	for i, in := range tx.inputs {
		inputs[i] = in
		inputs[i].PkScript = append([]byte(nil), in.PkScript...)
	}
	return inputs
}

// Paths returns the derivation path of every input, index aligned with
// Inputs.
func (tx *PreparedTx) Paths() []keypath.Path {
	paths := make([]keypath.Path, len(tx.inputs))
	for i, in := range tx.inputs {
		paths[i] = in.Path
	}
	return paths
}

// Outputs returns the outputs, recipients first and change last.
func (tx *PreparedTx) Outputs() []Output {
	outputs := make([]Output, len(tx.outputs))
	copy(outputs, tx.outputs)
	return outputs
}

// Change returns the change output, if any.
func (tx *PreparedTx) Change() fn.Option[Output] {
	if tx.changeIndex < 0 {
		return fn.None[Output]()
	}
	return fn.Some(tx.outputs[tx.changeIndex])
}

type jsonInput struct {
	OutPoint string `json:"outpoint"`
	Value    int64  `json:"value"`
	Path     string `json:"path"`
	PkScript string `json:"pkscript,omitempty"`
}

type jsonOutput struct {
	Recipient string `json:"recipient"`
	Value     int64  `json:"value"`
}

type jsonPreparedTx struct {
	Version     int32        `json:"version"`
	Inputs      []jsonInput  `json:"inputs"`
	Outputs     []jsonOutput `json:"outputs"`
	LockTime    int32        `json:"locktime"`
	Fee         int64        `json:"fee"`
	TotalInput  int64        `json:"totalinput"`
	ChangeIndex int          `json:"changeindex"`
}

// MarshalJSON implements json.Marshaler.  Amounts are in satoshis.
func (tx *PreparedTx) MarshalJSON() ([]byte, error) {
	out := jsonPreparedTx{
		Version:     tx.version,
		Inputs:      make([]jsonInput, 0, len(tx.inputs)),
		Outputs:     make([]jsonOutput, 0, len(tx.outputs)),
		LockTime:    tx.lockTime,
		Fee:         int64(tx.fee),
		TotalInput:  int64(tx.totalInput),
		ChangeIndex: tx.changeIndex,
	}
	for _, in := range tx.inputs {
		out.Inputs = append(out.Inputs, jsonInput{
			OutPoint: in.OutPoint.String(),
			Value:    int64(in.Value),
			Path:     in.Path.String(),
			PkScript: hex.EncodeToString(in.PkScript),
		})
	}
	for _, o := range tx.outputs {
		out.Outputs = append(out.Outputs, jsonOutput{
			Recipient: o.Recipient,
			Value:     int64(o.Value),
		})
	}
	return json.Marshal(out)
}

// Assemble builds a PreparedTx spending the selected inputs to the
// recipients, in caller order, followed by the change output if one is
// given.  Every input must carry a derivation path; when checker is non-nil
// each path is verified against the input's script.
//
// All failures are reported as AssemblyError.  Assemble performs no I/O.
func Assemble(selection *SelectionResult, recipients []Output,
	change fn.Option[Output], version, lockTime int32,
	checker PathChecker) (*PreparedTx, error) {

	if selection == nil || len(selection.Inputs) == 0 {
		return nil, assemblyErr(nil, "no inputs selected")
	}
	if len(recipients) == 0 {
		return nil, assemblyErr(nil, "no recipient outputs")
	}
	if lockTime < 0 {
		return nil, assemblyErr(nil, "negative lock time %d", lockTime)
	}

	inputs := make([]PreparedInput, 0, len(selection.Inputs))
	var inputTotal btcutil.Amount
	for i, utxo := range selection.Inputs {
		if utxo.Path.IsEmpty() {
			return nil, assemblyErr(nil, "input %d (%v) has no "+
				"derivation path", i, utxo.OutPoint)
		}
		if checker != nil {
			err := checker.CheckPath(utxo.Path, utxo.PkScript)
			if err != nil {
				return nil, assemblyErr(err, "input %d (%v)", i,
					utxo.OutPoint)
			}
		}

		inputTotal += utxo.Value
		inputs = append(inputs, PreparedInput{
			OutPoint: utxo.OutPoint,
			Value:    utxo.Value,
			Path:     utxo.Path,
			PkScript: append([]byte(nil), utxo.PkScript...),
		})
	}
	if inputTotal != selection.InputTotal {
		return nil, assemblyErr(nil, "selection total %v does not "+
			"match inputs %v", selection.InputTotal, inputTotal)
	}

	outputs := make([]Output, 0, len(recipients)+1)
	for i, out := range recipients {
		if out.Value <= 0 {
			return nil, assemblyErr(nil, "output %d has "+
				"non-positive value %v", i, out.Value)
		}
		outputs = append(outputs, out)
	}

	changeIndex := -1
	if change.IsSome() {
		changeOut := change.UnwrapOr(Output{})
		if changeOut.Value <= 0 {
			return nil, assemblyErr(nil, "change has non-positive "+
				"value %v", changeOut.Value)
		}
		changeIndex = len(outputs)
		outputs = append(outputs, changeOut)
	}

	outputTotal := SumOutputValues(outputs)
	fee := inputTotal - outputTotal
	if fee < selection.Fee {
		return nil, assemblyErr(nil, "inputs %v do not cover outputs "+
			"%v and fee %v", inputTotal, outputTotal, selection.Fee)
	}

	return &PreparedTx{
		version:     version,
		inputs:      inputs,
		outputs:     outputs,
		lockTime:    lockTime,
		fee:         fee,
		totalInput:  inputTotal,
		changeIndex: changeIndex,
	}, nil
}
