package workpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	t.Cleanup(reg.StopAll)

	prep, err := New(Config{CorePoolSize: 1, MaxPoolSize: 2, NamePrefix: "prepare"})
	require.NoError(t, err)
	fees, err := New(Config{MaxPoolSize: 1, NamePrefix: "fees"})
	require.NoError(t, err)

	require.NoError(t, reg.Register(prep))
	require.NoError(t, reg.Register(fees))

	dup, err := New(Config{MaxPoolSize: 1, NamePrefix: "prepare"})
	require.NoError(t, err)
	require.ErrorIs(t, reg.Register(dup), ErrPoolExists)

	got, err := reg.Get("prepare")
	require.NoError(t, err)
	require.Same(t, prep, got)

	_, err = reg.Get("sign")
	require.ErrorIs(t, err, ErrUnknownPool)

	// Registered pools are started.
	task, err := Submit(got, context.Background(),
		func(context.Context) (string, error) { return "ok", nil },
	)
	require.NoError(t, err)
	val, err := task.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, "ok", val)
	require.Equal(t, "prepare-1", task.Worker())

	reg.StopAll()

	_, err = Submit(prep, context.Background(),
		func(context.Context) (string, error) { return "", nil },
	)
	require.ErrorIs(t, err, ErrPoolStopped)

	_, err = reg.Get("prepare")
	require.ErrorIs(t, err, ErrUnknownPool)
}
