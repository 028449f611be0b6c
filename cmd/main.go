package main

import (
	"go.uber.org/zap"

	"github.com/ALEYI17/InfraProbe_gpu/internal/aspects"
	"github.com/ALEYI17/InfraProbe_gpu/internal/config"
	"github.com/ALEYI17/InfraProbe_gpu/internal/env"
	"github.com/ALEYI17/InfraProbe_gpu/pkg/logutil"
)

func main() {
	logutil.InitLogger()

	logger := logutil.GetLogger()
	defer logger.Sync()

	cfg := config.LoadConfig()

	environment, err := env.New(env.Options{
		Backend:     cfg.Backend,
		DeviceIndex: cfg.DeviceIndex,
		ConfigPath:  cfg.ConfigPath,
		ReportPath:  cfg.ReportPath,
		TableDir:    cfg.TableDir,
	})
	if err != nil {
		logger.Fatal("Error creating the environment", zap.Error(err))
	}
	defer environment.Close()

	for _, name := range cfg.ClearAspects {
		environment.ClearAspectReport(name)
	}

	for _, name := range cfg.EnableAspects {
		aspect, err := aspects.New(name)
		if err != nil {
			logger.Error("error to resolve aspect", zap.String("aspect", name), zap.Error(err))
			continue
		}
		if err := aspect.Measure(environment); err != nil {
			// Fatal for the run; everything measured so far is still
			// flushed so the next invocation can resume.
			logger.Error("aspect measurement failed", zap.String("aspect", name), zap.Error(err))
			if cerr := environment.Close(); cerr != nil {
				logger.Error("error flushing stores", zap.Error(cerr))
			}
			logger.Fatal("aborting run", zap.String("aspect", name))
		}
		logger.Info("aspect finished", zap.String("aspect", name))
	}

	logger.Info("all aspects finished")
}
