// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

// Params is used to group parameters for various networks such as the main
// network and test networks.
type Params struct {
	*chaincfg.Params

	// CoinType is the BIP0044 coin type used in account derivation paths.
	CoinType uint32

	// MetricsPort is the default port of the metrics listener.
	MetricsPort string
}

// MainNetParams contains parameters specific to the main network
// (wire.MainNet).
var MainNetParams = Params{
	Params:      &chaincfg.MainNetParams,
	CoinType:    0,
	MetricsPort: "9332",
}

// TestNet3Params contains parameters specific to the test network (version 3)
// (wire.TestNet3).
var TestNet3Params = Params{
	Params:      &chaincfg.TestNet3Params,
	CoinType:    1,
	MetricsPort: "19332",
}

// TestNet4Params contains parameters specific to the test network (version 4).
var TestNet4Params = Params{
	Params:      &TestNet4ChainParams,
	CoinType:    1,
	MetricsPort: "49332",
}

// RegressionNetParams contains parameters specific to the regression test
// network (wire.TestNet).
var RegressionNetParams = Params{
	Params:      &chaincfg.RegressionNetParams,
	CoinType:    1,
	MetricsPort: "18443",
}

// SimNetParams contains parameters specific to the simulation test network
// (wire.SimNet).
var SimNetParams = Params{
	Params:      &chaincfg.SimNetParams,
	CoinType:    115,
	MetricsPort: "18556",
}

var byName = map[string]*Params{
	"mainnet":  &MainNetParams,
	"testnet3": &TestNet3Params,
	"testnet4": &TestNet4Params,
	"regtest":  &RegressionNetParams,
	"simnet":   &SimNetParams,
}

// ByName returns the parameters of the named network.  "testnet" selects
// testnet3.
func ByName(name string) (*Params, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "testnet" {
		name = "testnet3"
	}

	params, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown network %q, supported networks "+
			"%v", name, Names())
	}
	return params, nil
}

// Names returns the sorted names accepted by ByName.
func Names() []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
