package aspects

import (
	"go.uber.org/zap"

	"github.com/ALEYI17/InfraProbe_gpu/internal/env"
	"github.com/ALEYI17/InfraProbe_gpu/pkg/logutil"
	"github.com/ALEYI17/InfraProbe_gpu/pkg/types"
)

// cachelineSize sweeps strided reads over a buffer: once the stride
// exceeds the cache line, every access misses and latency takes its
// biggest relative jump.
type cachelineSize struct{}

func (cachelineSize) Name() string { return types.AspectCachelineSize }

func (cachelineSize) Deps() []string { return []string{types.AspectTimingStability} }

func (cachelineSize) Measure(e *env.Environment) error {
	skip, err := e.ReportStartedLazy(types.AspectCachelineSize)
	if err != nil || skip {
		return err
	}
	if err := e.CheckDep(types.AspectTimingStability); err != nil {
		return err
	}

	bufSize := uint64(e.ConfigNumber("buffer_size", float64(1<<20)))
	maxStride := uint64(e.ConfigNumber("max_stride", 256))
	minTime := e.ConfigNumber("min_time_us", 1000)

	buf, err := e.CreateBuffer(types.MemReadOnly, bufSize)
	if err != nil {
		return err
	}
	defer func() {
		if err := buf.Release(); err != nil {
			logutil.GetLogger().Warn("cannot release probe buffer", zap.Error(err))
		}
	}()

	// Touch every page so the timed passes do not measure faults.
	host, err := buf.Map()
	if err != nil {
		return err
	}
	for i := range host {
		host[i] = byte(i)
	}
	if err := buf.Unmap(host); err != nil {
		return err
	}

	prog, err := e.CreateProgram("kernel probe read\n", "-Dunroll=4")
	if err != nil {
		return err
	}
	kern, err := e.CreateKernel(prog, "probe")
	if err != nil {
		return err
	}
	if err := kern.SetArg(0, buf); err != nil {
		return err
	}

	global := types.NDRange{X: 4096}
	niter := uint32(1)
	e.InitTable("stride", "elapsed_us")

	cacheline := uint64(1)
	bestJump := 0.0
	prev := 0.0
	for stride := uint64(1); stride <= maxStride; stride <<= 1 {
		if err := kern.SetArg(1, stride); err != nil {
			return err
		}
		run := func() (float64, error) {
			return e.BenchKernel(kern, types.NDRange{}, global, niter)
		}
		if stride == 1 {
			if err := e.EnsureMinNIter(minTime, &niter, run); err != nil {
				return err
			}
		}
		elapsed, err := run()
		if err != nil {
			return err
		}
		e.Table().Push(float64(stride), elapsed)
		if prev > 0 {
			if jump := elapsed / prev; jump > bestJump {
				bestJump = jump
				cacheline = stride
			}
		}
		prev = elapsed
	}

	e.ReportValue("BufCachelineSize", cacheline)
	e.MyReport.BufCachelineSize = uint32(cacheline)
	e.ReportReady(true)
	return nil
}
