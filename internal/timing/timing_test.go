package timing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearWorkloadLandsOnMinimalCount(t *testing.T) {
	niter := uint32(1)
	calls := 0
	run := func() (float64, error) {
		calls++
		return 10 * float64(niter), nil
	}

	err := DefaultTuning().EnsureMinIter(1000, &niter, run)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), niter)
	assert.Equal(t, 2, calls)

	// The calibrated count satisfies the threshold on the next run.
	elapsed, err := run()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 1000.0)
}

func TestAlreadyStableRunsExactlyOnce(t *testing.T) {
	niter := uint32(7)
	calls := 0
	run := func() (float64, error) {
		calls++
		return 5000, nil
	}

	err := DefaultTuning().EnsureMinIter(1000, &niter, run)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), niter, "a stable count must not change")
	assert.Equal(t, 1, calls, "the first invocation is the measurement itself")
}

func TestCountNeverDecreases(t *testing.T) {
	niter := uint32(1)
	prev := uint32(0)
	run := func() (float64, error) {
		require.Greater(t, niter, prev)
		prev = niter
		// Sub-linear cost: elapsed barely moves with the count.
		return 100 + float64(niter)/1000, nil
	}

	err := DefaultTuning().EnsureMinIter(1000, &niter, run)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, 100+float64(niter)/1000, 1000.0)
}

func TestConstantElapsedExhaustsRetryBudget(t *testing.T) {
	tun := Tuning{GrowthMargin: 1.5, MaxRetries: 4}
	niter := uint32(1)
	calls := 0
	run := func() (float64, error) {
		calls++
		return 1, nil
	}

	err := tun.EnsureMinIter(1000, &niter, run)
	var ce CalibrationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 4, ce.Retries)
	assert.Equal(t, tun.MaxRetries+1, calls)
}

func TestShrinkingElapsedTerminates(t *testing.T) {
	// Pathological workload whose reported time shrinks as the count
	// grows; the retry budget must still bound the search.
	niter := uint32(1)
	run := func() (float64, error) {
		return 1000 / float64(niter), nil
	}

	err := DefaultTuning().EnsureMinIter(5000, &niter, run)
	var ce CalibrationError
	require.ErrorAs(t, err, &ce)
}

func TestZeroElapsedTerminates(t *testing.T) {
	niter := uint32(1)
	run := func() (float64, error) { return 0, nil }

	err := DefaultTuning().EnsureMinIter(1000, &niter, run)
	var ce CalibrationError
	require.ErrorAs(t, err, &ce)
	assert.Greater(t, niter, uint32(1), "scale-ups still happen on zero elapsed")
}

func TestRunErrorPropagates(t *testing.T) {
	niter := uint32(1)
	boom := errors.New("queue failure")
	run := func() (float64, error) { return 0, boom }

	err := DefaultTuning().EnsureMinIter(1000, &niter, run)
	assert.ErrorIs(t, err, boom)
}

func TestZeroCountIsPromotedToOne(t *testing.T) {
	niter := uint32(0)
	run := func() (float64, error) { return 2000, nil }

	require.NoError(t, DefaultTuning().EnsureMinIter(1000, &niter, run))
	assert.Equal(t, uint32(1), niter)
}
