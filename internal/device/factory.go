package device

import (
	"fmt"

	"github.com/ALEYI17/InfraProbe_gpu/pkg/types"
)

// Open binds a backend by name to the zero-based device index.
func Open(backend string, idev uint32) (types.Backend, error) {
	switch backend {
	case types.BackendHostSim:
		return newHostSim(idev)
	default:
		return nil, fmt.Errorf("unsupported or unknown backend %q", backend)
	}
}
