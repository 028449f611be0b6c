package aspects

import (
	"fmt"

	"github.com/ALEYI17/InfraProbe_gpu/internal/env"
	"github.com/ALEYI17/InfraProbe_gpu/pkg/types"
)

// gflops measures achieved arithmetic throughput for fp32, fp16 and
// int32 multiply-add chains.
type gflops struct{}

func (gflops) Name() string { return types.AspectGFlops }

func (gflops) Deps() []string { return []string{types.AspectWarpSize} }

func (g gflops) Measure(e *env.Environment) error {
	skip, err := e.ReportStartedLazy(types.AspectGFlops)
	if err != nil || skip {
		return err
	}
	if err := e.CheckDep(types.AspectWarpSize); err != nil {
		return err
	}
	warp, err := e.MustGetAspectReportNumber(types.AspectWarpSize, "NThreadWarp")
	if err != nil {
		return err
	}

	minTime := e.ConfigNumber("min_time_us", 1000)
	unroll := uint32(e.ConfigNumber("unroll", 64))
	// Saturate every SM with a multiple of the warp width.
	global := types.NDRange{X: uint32(warp) * e.DevReport.NSM * 64}

	probes := []struct {
		op  string
		key string
		out *float64
	}{
		{"fma32", "GFlopsFP32", &e.MyReport.GFlopsFP32},
		{"fma16", "GFlopsFP16", &e.MyReport.GFlopsFP16},
		{"madd32", "GIopsINT32", &e.MyReport.GIopsINT32},
	}

	e.InitTable("probe", "niter", "elapsed_us", "gops")
	for i, p := range probes {
		prog, err := e.CreateProgram(
			fmt.Sprintf("kernel probe %s\n", p.op),
			fmt.Sprintf("-Dunroll=%d", unroll))
		if err != nil {
			return err
		}
		kern, err := e.CreateKernel(prog, "probe")
		if err != nil {
			return err
		}

		niter := uint32(1)
		run := func() (float64, error) {
			return e.BenchKernel(kern, types.NDRange{}, global, niter)
		}
		if err := e.EnsureMinNIter(minTime, &niter, run); err != nil {
			return err
		}
		elapsed, err := run()
		if err != nil {
			return err
		}

		// One multiply-add per unrolled step.
		ops := float64(global.Size()) * float64(unroll) * 2 * float64(niter)
		gops := ops / (elapsed * 1e3)
		e.Table().Push(float64(i), float64(niter), elapsed, gops)
		e.ReportValue(p.key, gops)
		*p.out = gops
	}

	e.ReportReady(true)
	return nil
}
