package types

const (
	BackendHostSim = "hostsim"

	AspectTimingStability = "timing_stability"
	AspectWarpSize        = "warp_size"
	AspectGFlops          = "gflops"
	AspectCachelineSize   = "cacheline_size"
)

// DefaultAspects lists the built-in aspects in dependency order.
var DefaultAspects = []string{
	AspectTimingStability,
	AspectWarpSize,
	AspectGFlops,
	AspectCachelineSize,
}
