// Package aspects holds the built-in measurement aspects. Each aspect
// talks to the core exclusively through the environment's lifecycle
// and store APIs; the driver runs them one at a time, in dependency
// order.
package aspects

import (
	"fmt"

	"github.com/ALEYI17/InfraProbe_gpu/internal/env"
	"github.com/ALEYI17/InfraProbe_gpu/pkg/types"
)

type Aspect interface {
	Name() string
	Deps() []string
	Measure(e *env.Environment) error
}

func New(name string) (Aspect, error) {
	switch name {
	case types.AspectTimingStability:
		return timingStability{}, nil
	case types.AspectWarpSize:
		return warpSize{}, nil
	case types.AspectGFlops:
		return gflops{}, nil
	case types.AspectCachelineSize:
		return cachelineSize{}, nil
	default:
		return nil, fmt.Errorf("unsupported or unknown aspect %q", name)
	}
}
