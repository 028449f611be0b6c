// Package env owns the measurement run: the device backend, the
// configuration and report documents, and the aspect lifecycle every
// probe is written against. All state is scoped to one Environment
// value, so independent instances never interfere.
package env

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ALEYI17/InfraProbe_gpu/internal/device"
	"github.com/ALEYI17/InfraProbe_gpu/internal/store"
	"github.com/ALEYI17/InfraProbe_gpu/internal/table"
	"github.com/ALEYI17/InfraProbe_gpu/internal/timing"
	"github.com/ALEYI17/InfraProbe_gpu/pkg/logutil"
	"github.com/ALEYI17/InfraProbe_gpu/pkg/types"
)

const (
	DefaultConfigPath = "InfraProbe.json"
	DefaultReportPath = "InfraProbeReport.json"

	// Config-document entry holding the timing controller tunables.
	calibrationAspect = "_calibration"
)

// ProfiledReport accumulates the architectural parameters derived as
// aspects complete. It is not persisted directly; aspects write their
// results into the report document and a later summarization may
// assemble this struct from there.
type ProfiledReport struct {
	TimingStd float64

	NThreadLogicForNReg map[uint32]uint32

	GFlopsFP16 float64
	GFlopsFP32 float64
	GIopsINT32 float64

	NMinWarp       uint32
	NWarp          uint32
	NThreadPhys    uint32
	NThreadWarp    uint32
	NThreadMinWarp uint32

	BufVecWidth      uint32
	BufVecTy         string
	BufCachelineSize uint32
	BufCacheSizes    []uint32

	ImgCachelineSize uint32
	ImgCacheSizes    []uint32
	ImgBandwidth     float64
}

type Options struct {
	Backend     string
	DeviceIndex uint32
	ConfigPath  string
	ReportPath  string
	// Directory for per-aspect CSV table dumps; empty disables dumps.
	TableDir string
}

// Environment orchestrates one measurement run.
type Environment struct {
	backend   types.Backend
	cfg       *store.Document
	report    *store.Document
	started   map[string]struct{}
	curAspect string
	curTable  *table.Table
	tableDir  string
	tuning    timing.Tuning
	closed    bool

	DevReport types.Report
	MyReport  ProfiledReport
}

// New binds the backend at the given device index and loads both
// documents. The caller must Close the environment so the documents
// are flushed back to disk.
func New(opts Options) (*Environment, error) {
	logger := logutil.GetLogger()
	if opts.Backend == "" {
		opts.Backend = types.BackendHostSim
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = DefaultConfigPath
	}
	if opts.ReportPath == "" {
		opts.ReportPath = DefaultReportPath
	}

	backend, err := device.Open(opts.Backend, opts.DeviceIndex)
	if err != nil {
		return nil, err
	}
	cfg, err := store.Load(opts.ConfigPath, "config")
	if err != nil {
		backend.Close()
		return nil, err
	}
	report, err := store.Load(opts.ReportPath, "report")
	if err != nil {
		backend.Close()
		return nil, err
	}

	tun := timing.DefaultTuning()
	tun.GrowthMargin = cfg.Number(calibrationAspect, "growth_margin", tun.GrowthMargin)
	tun.MaxRetries = int(cfg.Number(calibrationAspect, "max_retries", float64(tun.MaxRetries)))

	e := &Environment{
		backend:   backend,
		cfg:       cfg,
		report:    report,
		started:   make(map[string]struct{}),
		tableDir:  opts.TableDir,
		tuning:    tun,
		DevReport: backend.Report(),
	}
	logger.Info("environment ready",
		zap.String("backend", backend.Name()),
		zap.Uint32("idev", opts.DeviceIndex),
		zap.String("config", cfg.Path()),
		zap.String("report", report.Path()),
		zap.String("buf_cache_size", table.PrettyDataSize(e.DevReport.BufCacheSize)),
		zap.String("buf_size_max", table.PrettyDataSize(e.DevReport.BufSizeMax)))
	return e, nil
}

// Close releases the backend and flushes both documents exactly once.
// Whatever was written before a fatal condition is persisted, so a
// later run can resume from the last completed aspect.
func (e *Environment) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return multierr.Combine(
		e.cfg.Flush(),
		e.report.Flush(),
		e.backend.Close(),
	)
}

// ReportStarted marks the aspect as started and makes it current.
func (e *Environment) ReportStarted(name string) error {
	if _, ok := e.started[name]; ok {
		return DuplicateAspectError{Aspect: name}
	}
	e.started[name] = struct{}{}
	e.curAspect = name
	e.curTable = nil
	logutil.GetLogger().Info("aspect started", zap.String("aspect", name))
	return nil
}

// ReportStartedLazy is ReportStarted plus the memoization gate: it
// reports skip=true when a complete ("Done": true) report for the
// aspect already exists, so the caller can avoid re-measuring.
func (e *Environment) ReportStartedLazy(name string) (skip bool, err error) {
	if err := e.ReportStarted(name); err != nil {
		return false, err
	}
	if e.report.Bool(name, store.DoneKey) {
		logutil.GetLogger().Info("aspect already has a complete report, skipping",
			zap.String("aspect", name))
		return true, nil
	}
	return false, nil
}

// ReportReady finalizes the current aspect by recording whether its
// measurement completed. The aspect cursor stays valid until the next
// ReportStarted call.
func (e *Environment) ReportReady(done bool) {
	logger := logutil.GetLogger()
	if e.curAspect == "" {
		logger.Warn("ReportReady called outside an aspect scope")
		return
	}
	e.report.Set(e.curAspect, store.DoneKey, done)
	e.dumpTable(done)
	logger.Info("aspect ready", zap.String("aspect", e.curAspect), zap.Bool("done", done))
}

// CheckDep asserts that the named prerequisite aspect already started
// in this run. It detects ordering violations; it does not schedule.
func (e *Environment) CheckDep(name string) error {
	if _, ok := e.started[name]; !ok {
		return MissingDependencyError{Aspect: e.curAspect, Dep: name}
	}
	return nil
}

// ConfigNumber reads a tunable of the current aspect, installing def
// on first use so it shows up in the config file for hand editing.
func (e *Environment) ConfigNumber(key string, def float64) float64 {
	return e.cfg.Number(e.curAspect, key, def)
}

// ReportValue records a measured result for the current aspect.
func (e *Environment) ReportValue(key string, value any) {
	logutil.GetLogger().Info("reported value",
		zap.String("aspect", e.curAspect), zap.String("key", key), zap.Any("value", value))
	e.report.Set(e.curAspect, key, value)
}

func (e *Environment) TryGetReport(key string) (gjson.Result, bool) {
	return e.TryGetAspectReport(e.curAspect, key)
}

func (e *Environment) TryGetAspectReport(aspect, key string) (gjson.Result, bool) {
	v, ok := e.report.TryGet(aspect, key)
	if ok {
		logutil.GetLogger().Info("already know report value",
			zap.String("aspect", aspect), zap.String("key", key), zap.String("value", v.String()))
	}
	return v, ok
}

// MustGetAspectReportNumber reads a numeric result a later aspect
// depends on; absence is a MissingReportError.
func (e *Environment) MustGetAspectReportNumber(aspect, key string) (float64, error) {
	return e.report.MustGetNumber(aspect, key)
}

// ClearAspectReport forces re-measurement of the aspect on this and
// subsequent runs.
func (e *Environment) ClearAspectReport(aspect string) {
	e.report.Clear(aspect)
}

// EnsureMinNIter grows *niter until one run invocation lasts at least
// minTimeUS, leaving *niter calibrated for subsequent timing runs.
func (e *Environment) EnsureMinNIter(minTimeUS float64, niter *uint32, run func() (float64, error)) error {
	return e.tuning.EnsureMinIter(minTimeUS, niter, run)
}

// InitTable starts a sample table for the current aspect. Initializing
// a table outside an aspect scope is a programming error.
func (e *Environment) InitTable(columns ...string) {
	if e.curAspect == "" {
		panic("table can only be initialized in scope of a report")
	}
	logutil.GetLogger().Info("initialized table for aspect", zap.String("aspect", e.curAspect))
	e.curTable = table.New(columns...)
}

func (e *Environment) Table() *table.Table {
	return e.curTable
}

func (e *Environment) dumpTable(done bool) {
	logger := logutil.GetLogger()
	if e.curTable == nil || e.curTable.Len() == 0 || !done || e.tableDir == "" {
		return
	}
	if ce := logger.Check(zap.DebugLevel, "aspect table"); ce != nil {
		var sb strings.Builder
		e.curTable.Render(&sb)
		ce.Write(zap.String("aspect", e.curAspect), zap.String("table", sb.String()))
	}
	path := filepath.Join(e.tableDir, e.curAspect+".csv")
	f, err := os.Create(path)
	if err != nil {
		logger.Warn("cannot create table dump", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()
	if err := e.curTable.WriteCSV(f); err != nil {
		logger.Warn("cannot write table dump", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Info("table dumped", zap.String("aspect", e.curAspect), zap.String("path", path))
}

// Device resource passthroughs. Handles are owned by the caller and
// must be released before process exit.

func (e *Environment) CreateProgram(src, buildOpts string) (types.Program, error) {
	return e.backend.CreateProgram(src, buildOpts)
}

func (e *Environment) CreateKernel(p types.Program, name string) (types.Kernel, error) {
	return p.Kernel(name)
}

func (e *Environment) CreateBuffer(flags types.MemFlags, size uint64) (types.Buffer, error) {
	return e.backend.CreateBuffer(flags, size)
}

func (e *Environment) CreateImage1D(flags types.MemFlags, format types.ImageFormat, width uint32) (types.Image, error) {
	return e.backend.CreateImage1D(flags, format, width)
}

func (e *Environment) CreateImage2D(flags types.MemFlags, format types.ImageFormat, width, height uint32) (types.Image, error) {
	return e.backend.CreateImage2D(flags, format, width, height)
}

// BenchKernel runs the kernel niter times on the backend's in-order
// queue and returns total elapsed device time in microseconds.
func (e *Environment) BenchKernel(k types.Kernel, local, global types.NDRange, niter uint32) (float64, error) {
	return e.backend.BenchKernel(k, local, global, niter)
}
