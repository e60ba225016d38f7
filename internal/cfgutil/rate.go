// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/txprep/pkg/unit"
)

// FeeRateFlag holds a fee rate given on the command line in sat/vB and
// implements the flags.Marshaler and Unmarshaler interfaces.
type FeeRateFlag struct {
	unit.SatPerKVByte
}

// NewFeeRateFlag creates a FeeRateFlag with a default rate.
func NewFeeRateFlag(defaultValue unit.SatPerKVByte) *FeeRateFlag {
	return &FeeRateFlag{defaultValue}
}

// MarshalFlag satisfies the flags.Marshaler interface.
func (f *FeeRateFlag) MarshalFlag() (string, error) {
	return strconv.FormatFloat(float64(f.SatPerKVByte)/1000, 'f', -1, 64),
		nil
}

// UnmarshalFlag satisfies the flags.Unmarshaler interface.  Fractional
// sat/vB rates are accepted down to a millisatoshi per vbyte.  The rate in
// sat/kvB may not exceed btcutil.MaxSatoshi.
func (f *FeeRateFlag) UnmarshalFlag(value string) error {
	value = strings.TrimSpace(strings.TrimSuffix(value, "sat/vb"))

	rate, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("fee rate %v sat/vb is not a number", value)
	}
	if rate <= 0 {
		return fmt.Errorf("fee rate %v sat/vb must be positive", rate)
	}

	perKVByte := math.Round(rate * unit.SatsPerKilo)
	if perKVByte > btcutil.MaxSatoshi {
		return fmt.Errorf("fee rate %v sat/vb exceeds %v sat/kvb", rate,
			int64(btcutil.MaxSatoshi))
	}

	f.SatPerKVByte = unit.SatPerKVByte(perKVByte)
	return nil
}
