package device

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ALEYI17/InfraProbe_gpu/pkg/types"
)

// hostBuffer is a page-aligned anonymous mapping obtained with mmap,
// so an unbalanced map/unmap or a missing Release is a real resource
// leak rather than a simulated one.
type hostBuffer struct {
	sim    *hostSim
	data   []byte
	flags  types.MemFlags
	mapped bool
}

func (s *hostSim) allocate(flags types.MemFlags, size uint64) (*hostBuffer, error) {
	if size == 0 {
		return nil, errors.New("zero-sized allocation")
	}
	if size > s.report.BufSizeMax {
		return nil, fmt.Errorf("allocation of %d bytes exceeds device maximum %d",
			size, s.report.BufSizeMax)
	}
	data, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mapping %d bytes: %w", size, err)
	}
	s.liveBuffers++
	return &hostBuffer{sim: s, data: data, flags: flags}, nil
}

func (s *hostSim) CreateBuffer(flags types.MemFlags, size uint64) (types.Buffer, error) {
	return s.allocate(flags, size)
}

func (b *hostBuffer) Size() uint64 { return uint64(len(b.data)) }

func (b *hostBuffer) Map() ([]byte, error) {
	if b.data == nil {
		return nil, errors.New("resource already released")
	}
	if b.mapped {
		return nil, errors.New("resource is already mapped")
	}
	b.mapped = true
	b.sim.liveMaps++
	return b.data, nil
}

func (b *hostBuffer) Unmap(mapped []byte) error {
	if !b.mapped {
		return errors.New("resource is not mapped")
	}
	b.mapped = false
	b.sim.liveMaps--
	return nil
}

func (b *hostBuffer) Release() error {
	if b.data == nil {
		return nil
	}
	err := unix.Munmap(b.data)
	b.data = nil
	b.sim.liveBuffers--
	if b.mapped {
		b.mapped = false
		b.sim.liveMaps--
	}
	return err
}

type hostImage struct {
	hostBuffer
	width  uint32
	height uint32
}

func (s *hostSim) createImage(flags types.MemFlags, format types.ImageFormat, width, height uint32) (types.Image, error) {
	if !s.report.SupportImg {
		return nil, errors.New("device does not support images")
	}
	if width == 0 || width > s.report.ImgWidthMax || height == 0 || height > s.report.ImgHeightMax {
		return nil, fmt.Errorf("image shape %dx%d exceeds device maximum %dx%d",
			width, height, s.report.ImgWidthMax, s.report.ImgHeightMax)
	}
	if format.PixelBytes() == 0 {
		return nil, errors.New("image format has zero-sized pixels")
	}
	buf, err := s.allocate(flags, uint64(width)*uint64(height)*format.PixelBytes())
	if err != nil {
		return nil, err
	}
	return &hostImage{hostBuffer: *buf, width: width, height: height}, nil
}

func (s *hostSim) CreateImage1D(flags types.MemFlags, format types.ImageFormat, width uint32) (types.Image, error) {
	return s.createImage(flags, format, width, 1)
}

func (s *hostSim) CreateImage2D(flags types.MemFlags, format types.ImageFormat, width, height uint32) (types.Image, error) {
	return s.createImage(flags, format, width, height)
}

func (i *hostImage) Width() uint32  { return i.width }
func (i *hostImage) Height() uint32 { return i.height }
