package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/ALEYI17/InfraProbe_gpu/internal/env"
	"github.com/ALEYI17/InfraProbe_gpu/pkg/types"
)

// Config is the process-level configuration, read from INFRAPROBE_*
// environment variables. Per-aspect tunables live in the config
// document instead (see internal/store).
type Config struct {
	Backend       string
	DeviceIndex   uint32
	ConfigPath    string
	ReportPath    string
	TableDir      string
	EnableAspects []string
	ClearAspects  []string
}

func LoadConfig() *Config {
	v := viper.New()
	v.SetEnvPrefix("INFRAPROBE")
	v.AutomaticEnv()

	v.SetDefault("backend", types.BackendHostSim)
	v.SetDefault("device_index", 0)
	v.SetDefault("config_path", env.DefaultConfigPath)
	v.SetDefault("report_path", env.DefaultReportPath)
	v.SetDefault("table_dir", ".")
	v.SetDefault("aspects", strings.Join(types.DefaultAspects, ","))
	v.SetDefault("clear_aspects", "")

	return &Config{
		Backend:       v.GetString("backend"),
		DeviceIndex:   uint32(v.GetInt("device_index")),
		ConfigPath:    v.GetString("config_path"),
		ReportPath:    v.GetString("report_path"),
		TableDir:      v.GetString("table_dir"),
		EnableAspects: splitList(v.GetString("aspects")),
		ClearAspects:  splitList(v.GetString("clear_aspects")),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
