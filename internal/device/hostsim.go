package device

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"github.com/ALEYI17/InfraProbe_gpu/pkg/logutil"
	"github.com/ALEYI17/InfraProbe_gpu/pkg/types"
)

// hostSim executes kernels on the host CPU. It exists so the
// orchestration core, the stores and the timing controller can be
// exercised on machines without a GPU runtime, and so tests have an
// in-memory backend. It exposes exactly one device.
const hostSimDeviceCount = 1

const (
	hostSimImgDimMax = 16384
	// Fraction of host memory a single buffer may claim.
	hostSimBufMemDiv = 4
)

type hostSim struct {
	report types.Report

	liveBuffers int
	liveMaps    int
}

func newHostSim(idev uint32) (*hostSim, error) {
	if int(idev) >= hostSimDeviceCount {
		return nil, types.DeviceNotFoundError{
			Backend: types.BackendHostSim,
			Index:   idev,
			Count:   hostSimDeviceCount,
		}
	}
	s := &hostSim{report: queryHostReport()}
	logutil.GetLogger().Info("host simulation device bound",
		zap.Uint32("idev", idev),
		zap.Uint32("nsm", s.report.NSM),
		zap.Uint32("nthread_logic", s.report.NThreadLogic),
		zap.Uint64("buf_cacheline_size", s.report.BufCachelineSize),
		zap.Uint64("buf_cache_size", s.report.BufCacheSize))
	return s, nil
}

func queryHostReport() types.Report {
	logger := logutil.GetLogger()

	r := types.Report{
		HasPageSize:  true,
		PageSize:     uint64(os.Getpagesize()),
		SupportImg:   true,
		ImgWidthMax:  hostSimImgDimMax,
		ImgHeightMax: hostSimImgDimMax,
	}

	cacheline := cpuid.CPU.CacheLine
	if cacheline <= 0 {
		cacheline = 64
	}
	r.BufCachelineSize = uint64(cacheline)

	cache := cpuid.CPU.Cache.L2
	if l3 := cpuid.CPU.Cache.L3; l3 > 0 {
		cache = l3
	}
	if cache <= 0 {
		cache = 1 << 20
	}
	r.BufCacheSize = uint64(cache)

	logical := cpuid.CPU.LogicalCores
	if logical <= 0 {
		if n, err := cpu.Counts(true); err == nil {
			logical = n
		}
	}
	physical := cpuid.CPU.PhysicalCores
	if physical <= 0 {
		if n, err := cpu.Counts(false); err == nil {
			physical = n
		}
	}
	if logical <= 0 {
		logical = 1
	}
	if physical <= 0 {
		physical = logical
	}
	r.NThreadLogic = uint32(logical)
	r.NSM = uint32(physical)

	if vm, err := mem.VirtualMemory(); err == nil {
		r.BufSizeMax = vm.Total / hostSimBufMemDiv
	} else {
		logger.Warn("cannot query host memory, capping buffers at 1GiB", zap.Error(err))
		r.BufSizeMax = 1 << 30
	}
	return r
}

func (s *hostSim) Name() string { return types.BackendHostSim }

func (s *hostSim) Report() types.Report { return s.report }

// BenchKernel runs the kernel synchronously niter times back to back
// and reports total elapsed time in microseconds. The dispatch has
// fully completed by the time this returns.
func (s *hostSim) BenchKernel(k types.Kernel, local, global types.NDRange, niter uint32) (float64, error) {
	hk, ok := k.(*hostKernel)
	if !ok {
		return 0, errors.New("kernel was not created by this backend")
	}
	nthread := global.Size()
	if nthread == 0 {
		return 0, errors.New("empty global work shape")
	}
	if lsize := local.Size(); lsize > 0 && nthread%lsize != 0 {
		return 0, fmt.Errorf("global size %d is not a multiple of local size %d", nthread, lsize)
	}
	if niter == 0 {
		return 0, errors.New("niter must be positive")
	}
	start := time.Now()
	for i := uint32(0); i < niter; i++ {
		if err := hk.dispatch(nthread); err != nil {
			return 0, err
		}
	}
	return float64(time.Since(start).Nanoseconds()) / 1e3, nil
}

func (s *hostSim) Close() error {
	logger := logutil.GetLogger()
	if s.liveMaps != 0 {
		logger.Warn("backend closed with unmatched map/unmap pairs",
			zap.Int("live_maps", s.liveMaps))
	}
	if s.liveBuffers != 0 {
		logger.Warn("backend closed with unreleased resources",
			zap.Int("live_resources", s.liveBuffers))
	}
	return nil
}
