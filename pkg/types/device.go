package types

// Backend is the capability contract the probing core requires from a
// compute device. Implementations run a single in-order queue: a timed
// dispatch has fully completed before BenchKernel returns, so callers
// never observe partially written resources.
type Backend interface {
	Name() string
	Report() Report
	// CreateProgram compiles kernel source with the given build
	// options. Compilation failures return a BuildError carrying the
	// backend's diagnostic log.
	CreateProgram(src string, buildOpts string) (Program, error)
	CreateBuffer(flags MemFlags, size uint64) (Buffer, error)
	CreateImage1D(flags MemFlags, format ImageFormat, width uint32) (Image, error)
	CreateImage2D(flags MemFlags, format ImageFormat, width, height uint32) (Image, error)
	// BenchKernel dispatches the kernel niter times back to back over
	// the local/global work shape and returns total elapsed device
	// time in microseconds.
	BenchKernel(k Kernel, local, global NDRange, niter uint32) (float64, error)
	Close() error
}

type Program interface {
	// Kernel extracts a compiled kernel by name.
	Kernel(name string) (Kernel, error)
}

type Kernel interface {
	Name() string
	SetArg(index int, value any) error
}

// Buffer is a linear device allocation. Every Map must be paired with
// exactly one Unmap before Release.
type Buffer interface {
	Size() uint64
	Map() ([]byte, error)
	Unmap(mapped []byte) error
	Release() error
}

type Image interface {
	Width() uint32
	Height() uint32
	Map() ([]byte, error)
	Unmap(mapped []byte) error
	Release() error
}

// MemFlags declares the device-side access intent of an allocation.
type MemFlags uint32

const (
	MemReadWrite MemFlags = 1 << iota
	MemReadOnly
	MemWriteOnly
)

type ImageFormat struct {
	Channels     uint32
	ChannelBytes uint32
}

func (f ImageFormat) PixelBytes() uint64 {
	return uint64(f.Channels) * uint64(f.ChannelBytes)
}

// NDRange is a 1/2/3-dimensional work shape. Unused dimensions are
// zero and count as one.
type NDRange struct {
	X, Y, Z uint32
}

func (r NDRange) Size() uint64 {
	size := uint64(1)
	for _, d := range []uint32{r.X, r.Y, r.Z} {
		if d > 0 {
			size *= uint64(d)
		}
	}
	if r.X == 0 && r.Y == 0 && r.Z == 0 {
		return 0
	}
	return size
}

// Report holds fixed hardware facts queried once from the device at
// environment construction. Immutable for the process lifetime.
type Report struct {
	HasPageSize bool
	PageSize    uint64

	BufCachelineSize uint64
	BufSizeMax       uint64
	BufCacheSize     uint64

	SupportImg   bool
	ImgWidthMax  uint32
	ImgHeightMax uint32

	NSM          uint32
	NThreadLogic uint32
}
