// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/txprep/pkg/unit"
	"github.com/stretchr/testify/require"
)

func TestAmountFlag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want btcutil.Amount
		err  bool
	}{
		{in: "0.00001", want: 1000},
		{in: "0.00001 BTC", want: 1000},
		{in: "546 sat", want: 546},
		{in: "546sat", want: 546},
		{in: "-1 sat", err: true},
		{in: "-0.1", err: true},
		{in: "lots", err: true},
	}

	for _, test := range tests {
		var f AmountFlag
		err := f.UnmarshalFlag(test.in)
		if test.err {
			require.Error(t, err, test.in)
			continue
		}
		require.NoError(t, err, test.in)
		require.Equal(t, test.want, f.Amount, test.in)
	}

	s, err := NewAmountFlag(1000).MarshalFlag()
	require.NoError(t, err)
	require.Equal(t, "0.00001 BTC", s)
}

func TestFeeRateFlag(t *testing.T) {
	t.Parallel()

	var f FeeRateFlag
	require.NoError(t, f.UnmarshalFlag("10"))
	require.Equal(t, unit.SatPerKVByte(10000), f.SatPerKVByte)

	require.NoError(t, f.UnmarshalFlag("1.5 sat/vb"))
	require.Equal(t, unit.SatPerKVByte(1500), f.SatPerKVByte)

	require.Error(t, f.UnmarshalFlag("0"))
	require.Error(t, f.UnmarshalFlag("-5"))
	require.Error(t, f.UnmarshalFlag("fast"))

	// Values that parse as floats but are not usable rates are rejected
	// and leave the previous rate in place.
	for _, value := range []string{
		"NaN", "nan", "Inf", "+Inf", "-Inf", "1e300",
		"21000000000000 sat/vb",
	} {
		require.Error(t, f.UnmarshalFlag(value), value)
		require.Equal(t, unit.SatPerKVByte(1500), f.SatPerKVByte)
	}

	// The largest accepted rate is the money supply per kvB.
	require.NoError(t, f.UnmarshalFlag("2100000000000"))
	require.Equal(t, unit.SatPerKVByte(btcutil.MaxSatoshi), f.SatPerKVByte)
	require.Error(t, f.UnmarshalFlag("2100000000000.001"))

	s, err := NewFeeRateFlag(2500).MarshalFlag()
	require.NoError(t, err)
	require.Equal(t, "2.5", s)
}

func TestExplicitString(t *testing.T) {
	t.Parallel()

	e := NewExplicitString("default")
	require.False(t, e.ExplicitlySet())

	require.NoError(t, e.UnmarshalFlag("default"))
	require.True(t, e.ExplicitlySet())
	require.Equal(t, "default", e.Value)
}

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	addr, err := NormalizeAddress("localhost", "9332")
	require.NoError(t, err)
	require.Equal(t, "localhost:9332", addr)

	addr, err = NormalizeAddress("127.0.0.1:8080", "9332")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8080", addr)

	addr, err = NormalizeAddress("::1", "9332")
	require.NoError(t, err)
	require.Equal(t, "[::1]:9332", addr)
}

func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	ok, err := FileExists(path)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	ok, err = FileExists(path)
	require.NoError(t, err)
	require.True(t, ok)
}
