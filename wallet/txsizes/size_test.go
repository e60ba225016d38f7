package txsizes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresetModels(t *testing.T) {
	t.Parallel()

	require.Equal(t, Model{Overhead: 11, PerInput: 69, PerOutput: 31},
		P2WPKHModel)
	require.Equal(t, Model{Overhead: 10, PerInput: 149, PerOutput: 34},
		P2PKHModel)
	require.Equal(t, Model{Overhead: 11, PerInput: 58, PerOutput: 43},
		P2TRModel)

	for _, m := range []Model{P2WPKHModel, P2PKHModel, P2TRModel} {
		require.NoError(t, m.Validate())
	}
}

func TestEstimateVirtualSize(t *testing.T) {
	t.Parallel()

	m := P2WPKHModel

	tests := []struct {
		name     string
		inputs   int
		outputs  int
		expected int
	}{
		{"1 in 1 out", 1, 1, 11 + 69 + 31},
		{"2 in 2 out", 2, 2, 11 + 2*69 + 2*31},
		{"no inputs", 0, 1, 11 + 31},

		// 0xfd is the discriminant for 16-bit compact ints, the
		// compact int grows from 1 byte to 3.
		{"252 inputs", 0xfc, 1, 11 + 0xfc*69 + 31},
		{"253 inputs", 0xfd, 1, 11 + 0xfd*69 + 31 + 2},
		{"253 outputs", 1, 0xfd, 11 + 69 + 0xfd*31 + 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, test.expected,
				m.EstimateVirtualSize(test.inputs, test.outputs))
		})
	}
}

func TestModelByName(t *testing.T) {
	t.Parallel()

	m, err := ModelByName("P2WPKH")
	require.NoError(t, err)
	require.Equal(t, P2WPKHModel, m)

	m, err = ModelByName("")
	require.NoError(t, err)
	require.Equal(t, P2WPKHModel, m)

	m, err = ModelByName(" p2tr ")
	require.NoError(t, err)
	require.Equal(t, P2TRModel, m)

	_, err = ModelByName("p2sh")
	require.ErrorIs(t, err, ErrUnknownModel)
}

func TestModelValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Model{}.Validate(), ErrInvalidModel)
	require.ErrorIs(t, Model{Overhead: -1, PerInput: 1, PerOutput: 1}.
		Validate(), ErrInvalidModel)
	require.NoError(t, Model{PerInput: 1, PerOutput: 1}.Validate())
}

func TestOutputScriptSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, P2WPKHPkScriptSize, P2WPKHModel.OutputScriptSize())
	require.Equal(t, P2PKHPkScriptSize, P2PKHModel.OutputScriptSize())
	require.Equal(t, P2TRPkScriptSize, P2TRModel.OutputScriptSize())
	require.Zero(t, Model{PerInput: 1, PerOutput: 1}.OutputScriptSize())
}
