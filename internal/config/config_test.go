package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ALEYI17/InfraProbe_gpu/pkg/types"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, types.BackendHostSim, cfg.Backend)
	assert.Equal(t, uint32(0), cfg.DeviceIndex)
	assert.Equal(t, "InfraProbe.json", cfg.ConfigPath)
	assert.Equal(t, "InfraProbeReport.json", cfg.ReportPath)
	assert.Equal(t, types.DefaultAspects, cfg.EnableAspects)
	assert.Empty(t, cfg.ClearAspects)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("INFRAPROBE_DEVICE_INDEX", "2")
	t.Setenv("INFRAPROBE_CONFIG_PATH", "/tmp/probe.json")
	t.Setenv("INFRAPROBE_REPORT_PATH", "/tmp/probe_report.json")
	t.Setenv("INFRAPROBE_ASPECTS", "warp_size, gflops")
	t.Setenv("INFRAPROBE_CLEAR_ASPECTS", "gflops")

	cfg := LoadConfig()

	assert.Equal(t, uint32(2), cfg.DeviceIndex)
	assert.Equal(t, "/tmp/probe.json", cfg.ConfigPath)
	assert.Equal(t, "/tmp/probe_report.json", cfg.ReportPath)
	assert.Equal(t, []string{"warp_size", "gflops"}, cfg.EnableAspects)
	assert.Equal(t, []string{"gflops"}, cfg.ClearAspects)
}
