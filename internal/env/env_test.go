package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ALEYI17/InfraProbe_gpu/internal/store"
	"github.com/ALEYI17/InfraProbe_gpu/pkg/types"
)

type paths struct {
	cfg    string
	report string
	tables string
}

func newPaths(t *testing.T) paths {
	t.Helper()
	dir := t.TempDir()
	return paths{
		cfg:    filepath.Join(dir, "InfraProbe.json"),
		report: filepath.Join(dir, "InfraProbeReport.json"),
		tables: dir,
	}
}

func newEnv(t *testing.T, p paths) *Environment {
	t.Helper()
	e, err := New(Options{
		Backend:     types.BackendHostSim,
		DeviceIndex: 0,
		ConfigPath:  p.cfg,
		ReportPath:  p.report,
		TableDir:    p.tables,
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestNewRejectsBadDeviceIndex(t *testing.T) {
	p := newPaths(t)
	_, err := New(Options{
		Backend:     types.BackendHostSim,
		DeviceIndex: 9,
		ConfigPath:  p.cfg,
		ReportPath:  p.report,
	})
	var dnf types.DeviceNotFoundError
	require.ErrorAs(t, err, &dnf)
}

func TestDuplicateAspectIsFatal(t *testing.T) {
	e := newEnv(t, newPaths(t))

	require.NoError(t, e.ReportStarted("warp_size"))
	err := e.ReportStarted("warp_size")
	var dup DuplicateAspectError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "warp_size", dup.Aspect)

	// The lazy variant hits the same guard.
	_, err = e.ReportStartedLazy("warp_size")
	require.ErrorAs(t, err, &dup)
}

func TestCheckDepIgnoresPriorRunReports(t *testing.T) {
	p := newPaths(t)
	// A previous process invocation completed aspect "b".
	require.NoError(t, os.WriteFile(p.report, []byte(`{"b": {"Done": true}}`), 0o644))

	e := newEnv(t, p)
	require.NoError(t, e.ReportStarted("a"))

	// "b" never started in THIS run, whatever its report says.
	err := e.CheckDep("b")
	var miss MissingDependencyError
	require.ErrorAs(t, err, &miss)
	assert.Equal(t, "a", miss.Aspect)
	assert.Equal(t, "b", miss.Dep)
}

func TestCheckDepPassesForStartedAspect(t *testing.T) {
	e := newEnv(t, newPaths(t))
	require.NoError(t, e.ReportStarted("a"))
	require.NoError(t, e.ReportStarted("b"))
	assert.NoError(t, e.CheckDep("a"))
}

func TestLazySkipSignals(t *testing.T) {
	p := newPaths(t)
	require.NoError(t, os.WriteFile(p.report,
		[]byte(`{"done": {"Done": true}, "partial": {"Done": false}, "empty": {}}`), 0o644))
	e := newEnv(t, p)

	skip, err := e.ReportStartedLazy("done")
	require.NoError(t, err)
	assert.True(t, skip)

	skip, err = e.ReportStartedLazy("partial")
	require.NoError(t, err)
	assert.False(t, skip)

	skip, err = e.ReportStartedLazy("empty")
	require.NoError(t, err)
	assert.False(t, skip)

	skip, err = e.ReportStartedLazy("absent")
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestLazySkipDoesNotWrite(t *testing.T) {
	p := newPaths(t)
	require.NoError(t, os.WriteFile(p.report, []byte(`{"a": {"Done": true, "x": 1}}`), 0o644))
	e := newEnv(t, p)

	skip, err := e.ReportStartedLazy("a")
	require.NoError(t, err)
	require.True(t, skip)
	require.NoError(t, e.Close())

	data, err := os.ReadFile(p.report)
	require.NoError(t, err)
	assert.True(t, gjson.GetBytes(data, "a.Done").Bool())
	assert.Equal(t, int64(1), gjson.GetBytes(data, "a.x").Int())
}

func TestMustGetAspectReportNumber(t *testing.T) {
	e := newEnv(t, newPaths(t))
	require.NoError(t, e.ReportStarted("a"))
	e.ReportValue("NIter", 42)

	got, err := e.MustGetAspectReportNumber("a", "NIter")
	require.NoError(t, err)
	assert.Equal(t, 42.0, got)

	_, err = e.MustGetAspectReportNumber("a", "absent")
	var mre store.MissingReportError
	require.ErrorAs(t, err, &mre)
}

func TestClearForcesRemeasurement(t *testing.T) {
	p := newPaths(t)
	require.NoError(t, os.WriteFile(p.report, []byte(`{"a": {"Done": true}}`), 0o644))
	e := newEnv(t, p)

	e.ClearAspectReport("a")
	skip, err := e.ReportStartedLazy("a")
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestInitTablePanicsOutsideAspectScope(t *testing.T) {
	e := newEnv(t, newPaths(t))
	assert.Panics(t, func() { e.InitTable("col") })
}

func TestConfigNumberPersistsDefault(t *testing.T) {
	p := newPaths(t)
	e := newEnv(t, p)
	require.NoError(t, e.ReportStarted("x"))

	assert.Equal(t, 100.0, e.ConfigNumber("iters", 100))
	require.NoError(t, e.Close())

	data, err := os.ReadFile(p.cfg)
	require.NoError(t, err)
	assert.Equal(t, 100.0, gjson.GetBytes(data, "x.iters").Float())
}

// Measure aspect "x" in one process invocation, then observe the skip
// signal in a second one backed by the same files.
func TestEndToEndResume(t *testing.T) {
	p := newPaths(t)

	e := newEnv(t, p)
	skip, err := e.ReportStartedLazy("x")
	require.NoError(t, err)
	require.False(t, skip)

	iters := e.ConfigNumber("iters", 100)
	assert.Equal(t, 100.0, iters)

	n := uint32(1)
	run := func() (float64, error) { return 10 * float64(n), nil }
	require.NoError(t, e.EnsureMinNIter(1000, &n, run))
	assert.Equal(t, uint32(100), n)

	e.ReportValue("niter", n)
	e.ReportReady(true)
	require.NoError(t, e.Close())

	data, err := os.ReadFile(p.report)
	require.NoError(t, err)
	assert.True(t, gjson.GetBytes(data, "x.Done").Bool())

	// Second invocation resumes from the persisted report.
	e2 := newEnv(t, p)
	skip, err = e2.ReportStartedLazy("x")
	require.NoError(t, err)
	assert.True(t, skip)
}

func TestReportReadyFalseIsNotComplete(t *testing.T) {
	p := newPaths(t)
	e := newEnv(t, p)

	skip, err := e.ReportStartedLazy("x")
	require.NoError(t, err)
	require.False(t, skip)
	e.ReportValue("partial", 1)
	e.ReportReady(false)
	require.NoError(t, e.Close())

	e2 := newEnv(t, p)
	skip, err = e2.ReportStartedLazy("x")
	require.NoError(t, err)
	assert.False(t, skip, "a failed measurement must be redone")
	v, ok := e2.TryGetReport("partial")
	require.True(t, ok, "partial results survive for inspection")
	assert.Equal(t, 1.0, v.Float())
}

func TestCloseFlushesOnce(t *testing.T) {
	p := newPaths(t)
	e := newEnv(t, p)
	require.NoError(t, e.ReportStarted("x"))
	e.ReportValue("k", 5)

	require.NoError(t, e.Close())
	require.NoError(t, os.Remove(p.report))
	// Second close is a no-op and must not resurrect the file.
	require.NoError(t, e.Close())
	_, err := os.Stat(p.report)
	assert.True(t, os.IsNotExist(err))
}

func TestTableDumpOnDone(t *testing.T) {
	p := newPaths(t)
	e := newEnv(t, p)
	require.NoError(t, e.ReportStarted("probe"))

	e.InitTable("stride", "elapsed_us")
	require.NoError(t, e.Table().Push(1, 2.5))
	e.ReportReady(true)

	data, err := os.ReadFile(filepath.Join(p.tables, "probe.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "stride,elapsed_us")
	assert.Contains(t, string(data), "1,2.5")
}
