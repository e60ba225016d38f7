package unit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTxSizeConversion checks that weight units convert to virtual bytes
// rounding up.
func TestTxSizeConversion(t *testing.T) {
	t.Parallel()

	require.Equal(t, VByte(250), WeightUnit(1000).ToVB())

	// Partial vbytes are rounded up.
	require.Equal(t, VByte(169), WeightUnit(674).ToVB())
	require.Equal(t, VByte(1), WeightUnit(2).ToVB())
	require.Zero(t, WeightUnit(0).ToVB())
}

// TestTxSizeStringer tests the stringer methods of the tx size types.
func TestTxSizeStringer(t *testing.T) {
	t.Parallel()

	require.Equal(t, "1000 wu", WeightUnit(1000).String())
	require.Equal(t, "250 vb", VByte(250).String())
}
