package aspects

import (
	"github.com/ALEYI17/InfraProbe_gpu/internal/env"
	"github.com/ALEYI17/InfraProbe_gpu/pkg/types"
)

// warpSize probes the hardware SIMD width: dispatch latency stays flat
// while a growing work group still fits one warp, then jumps once the
// group spills into a second one.
type warpSize struct{}

func (warpSize) Name() string { return types.AspectWarpSize }

func (warpSize) Deps() []string { return []string{types.AspectTimingStability} }

func (warpSize) Measure(e *env.Environment) error {
	skip, err := e.ReportStartedLazy(types.AspectWarpSize)
	if err != nil || skip {
		return err
	}
	if err := e.CheckDep(types.AspectTimingStability); err != nil {
		return err
	}
	baseIter, err := e.MustGetAspectReportNumber(types.AspectTimingStability, "NIter")
	if err != nil {
		return err
	}

	maxLocal := uint32(e.ConfigNumber("max_local", 64))
	jumpFactor := e.ConfigNumber("jump_factor", 1.5)
	niter := uint32(baseIter)

	prog, err := e.CreateProgram("kernel probe fma32\n", "-Dunroll=4")
	if err != nil {
		return err
	}
	kern, err := e.CreateKernel(prog, "probe")
	if err != nil {
		return err
	}

	e.InitTable("local_size", "elapsed_us")
	warp := uint32(1)
	prev := 0.0
	for local := uint32(1); local <= maxLocal; local <<= 1 {
		shape := types.NDRange{X: local}
		elapsed, err := e.BenchKernel(kern, shape, shape, niter)
		if err != nil {
			return err
		}
		e.Table().Push(float64(local), elapsed)
		if prev > 0 && elapsed > prev*jumpFactor {
			break
		}
		warp = local
		prev = elapsed
	}

	nwarp := e.DevReport.NThreadLogic / warp
	if nwarp == 0 {
		nwarp = 1
	}
	e.ReportValue("NThreadWarp", warp)
	e.ReportValue("NWarp", nwarp)
	e.MyReport.NThreadWarp = warp
	e.MyReport.NWarp = nwarp
	e.ReportReady(true)
	return nil
}
