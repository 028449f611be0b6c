package timing

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/ALEYI17/InfraProbe_gpu/pkg/logutil"
)

// CalibrationError reports that the iteration count could not be grown
// to meet the stability threshold within the retry budget.
type CalibrationError struct {
	MinTimeUS float64
	NIter     uint32
	Retries   int
}

func (e CalibrationError) Error() string {
	return fmt.Sprintf("cannot reach %.1fus within %d scale-up retries (niter=%d)",
		e.MinTimeUS, e.Retries, e.NIter)
}

// Tuning holds the calibration search constants. The first scale-up
// uses the exact ratio minTime/elapsed, so a workload with linear
// per-iteration cost lands on the minimal iteration count in one step;
// later scale-ups multiply by GrowthMargin to escape fixed launch
// overhead and sub-linear cost.
type Tuning struct {
	GrowthMargin float64
	MaxRetries   int
}

func DefaultTuning() Tuning {
	return Tuning{GrowthMargin: 1.5, MaxRetries: 16}
}

// EnsureMinIter grows *niter until a single invocation of run takes at
// least minTimeUS microseconds. run executes the workload *niter times
// and returns total elapsed microseconds; it is invoked at least once,
// so the call is an observable measurement, not a dry-run estimate.
// *niter never decreases and is left at the first count that met the
// threshold, for reuse by subsequent timing runs of the same workload.
func (t Tuning) EnsureMinIter(minTimeUS float64, niter *uint32, run func() (float64, error)) error {
	logger := logutil.GetLogger()
	if *niter == 0 {
		*niter = 1
	}
	for attempt := 0; ; attempt++ {
		elapsed, err := run()
		if err != nil {
			return err
		}
		if elapsed >= minTimeUS {
			logger.Debug("iteration count calibrated",
				zap.Uint32("niter", *niter),
				zap.Float64("elapsed_us", elapsed),
				zap.Int("retries", attempt))
			return nil
		}
		if attempt >= t.MaxRetries || *niter == math.MaxUint32 {
			return CalibrationError{MinTimeUS: minTimeUS, NIter: *niter, Retries: attempt}
		}
		scale := minTimeUS / elapsed
		if elapsed <= 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
			// Zero elapsed carries no signal about per-iteration cost.
			scale = 16
		}
		if attempt > 0 {
			scale *= t.GrowthMargin
		}
		next := math.Ceil(float64(*niter) * scale)
		if next > math.MaxUint32 {
			next = math.MaxUint32
		}
		if uint32(next) <= *niter {
			next = float64(*niter + 1)
		}
		logger.Debug("scaling up iteration count",
			zap.Uint32("from", *niter),
			zap.Uint32("to", uint32(next)),
			zap.Float64("elapsed_us", elapsed))
		*niter = uint32(next)
	}
}
