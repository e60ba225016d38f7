// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/txprep/keypath"
	"github.com/btcsuite/txprep/wallet"
	"github.com/btcsuite/txprep/wallet/txauthor"
)

// jsonUTXO is the file representation of a single unspent output.
type jsonUTXO struct {
	TxID      string       `json:"txid"`
	Vout      uint32       `json:"vout"`
	Value     int64        `json:"value"`
	Path      keypath.Path `json:"path"`
	PkScript  string       `json:"pkscript"`
	Spendable *bool        `json:"spendable,omitempty"`
}

// jsonSnapshot is the file representation of a UTXO snapshot.
type jsonSnapshot struct {
	Height int32      `json:"height"`
	UTXOs  []jsonUTXO `json:"utxos"`
}

// jsonOutput is the file representation of a payment output.
type jsonOutput struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// jsonIntent is the file representation of a payment intent.
type jsonIntent struct {
	Outputs  []jsonOutput `json:"outputs"`
	FeeTier  string       `json:"feetier"`
	Version  int32        `json:"version"`
	LockTime int32        `json:"locktime"`
}

// decodeSnapshot parses a snapshot document.
func decodeSnapshot(data []byte) (*wallet.Snapshot, error) {
	var doc jsonSnapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}

	utxos := make([]txauthor.UTXO, 0, len(doc.UTXOs))
	for i, u := range doc.UTXOs {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("utxo %d: invalid txid: %w", i,
				err)
		}
		pkScript, err := hex.DecodeString(u.PkScript)
		if err != nil {
			return nil, fmt.Errorf("utxo %d: invalid pkscript: %w",
				i, err)
		}

		spendable := true
		if u.Spendable != nil {
			spendable = *u.Spendable
		}

		utxos = append(utxos, txauthor.UTXO{
			OutPoint:  *wire.NewOutPoint(hash, u.Vout),
			Value:     btcutil.Amount(u.Value),
			Path:      u.Path,
			PkScript:  pkScript,
			Spendable: spendable,
		})
	}

	return wallet.NewSnapshot(doc.Height, utxos), nil
}

// decodeIntents parses an intent document holding either a single intent or
// a list of them.
func decodeIntents(data []byte) ([]*wallet.Intent, error) {
	data = bytes.TrimSpace(data)

	var docs []jsonIntent
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("invalid intents: %w", err)
		}
	} else {
		var doc jsonIntent
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid intent: %w", err)
		}
		docs = append(docs, doc)
	}

	intents := make([]*wallet.Intent, 0, len(docs))
	for _, doc := range docs {
		outputs := make([]txauthor.Output, 0, len(doc.Outputs))
		for _, out := range doc.Outputs {
			outputs = append(outputs, txauthor.Output{
				Value:     btcutil.Amount(out.Amount),
				Recipient: out.Address,
			})
		}

		intents = append(intents, &wallet.Intent{
			Outputs:  outputs,
			FeeTier:  doc.FeeTier,
			Version:  doc.Version,
			LockTime: doc.LockTime,
		})
	}

	return intents, nil
}

// loadSnapshot reads the snapshot file at path.
func loadSnapshot(path string) (*wallet.Snapshot, error) {
	data, err := os.ReadFile(cleanAndExpandPath(path))
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

// loadIntents reads every intent file in order.
func loadIntents(paths []string) ([]*wallet.Intent, error) {
	var intents []*wallet.Intent
	for _, path := range paths {
		data, err := os.ReadFile(cleanAndExpandPath(path))
		if err != nil {
			return nil, err
		}
		more, err := decodeIntents(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		intents = append(intents, more...)
	}
	return intents, nil
}
