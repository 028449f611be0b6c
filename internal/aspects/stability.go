package aspects

import (
	"math"

	"github.com/ALEYI17/InfraProbe_gpu/internal/env"
	"github.com/ALEYI17/InfraProbe_gpu/pkg/types"
)

// timingStability calibrates a trivial arithmetic kernel and samples
// it repeatedly to establish the relative timing noise of the device.
// Its calibrated iteration count is reused by later aspects.
type timingStability struct{}

func (timingStability) Name() string { return types.AspectTimingStability }

func (timingStability) Deps() []string { return nil }

func (timingStability) Measure(e *env.Environment) error {
	skip, err := e.ReportStartedLazy(types.AspectTimingStability)
	if err != nil || skip {
		return err
	}

	minTime := e.ConfigNumber("min_time_us", 1000)
	nsample := int(e.ConfigNumber("nsample", 16))

	prog, err := e.CreateProgram("kernel probe fma32\n", "-Dunroll=16")
	if err != nil {
		return err
	}
	kern, err := e.CreateKernel(prog, "probe")
	if err != nil {
		return err
	}

	global := types.NDRange{X: e.DevReport.NThreadLogic * 256}
	niter := uint32(1)
	run := func() (float64, error) {
		return e.BenchKernel(kern, types.NDRange{}, global, niter)
	}
	if err := e.EnsureMinNIter(minTime, &niter, run); err != nil {
		return err
	}

	e.InitTable("sample", "elapsed_us")
	samples := make([]float64, 0, nsample)
	for i := 0; i < nsample; i++ {
		elapsed, err := run()
		if err != nil {
			return err
		}
		samples = append(samples, elapsed)
		e.Table().Push(float64(i), elapsed)
	}

	mean, std := meanStd(samples)
	relStd := 0.0
	if mean > 0 {
		relStd = std / mean
	}
	e.ReportValue("NIter", niter)
	e.ReportValue("MeanUS", mean)
	e.ReportValue("TimingStd", relStd)
	e.MyReport.TimingStd = relStd
	e.ReportReady(true)
	return nil
}

func meanStd(samples []float64) (mean, std float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))
	for _, s := range samples {
		std += (s - mean) * (s - mean)
	}
	std = math.Sqrt(std / float64(len(samples)))
	return mean, std
}
