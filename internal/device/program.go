package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ALEYI17/InfraProbe_gpu/pkg/types"
)

// The host simulation compiles a one-kernel-per-line dialect:
//
//	kernel <name> <op>
//
// Blank lines and '#' comments are ignored. Ops: fma32, fma16, madd32,
// read, write, copy. Build options understand -Dunroll=N, the number
// of times the op repeats per work item.
const (
	opFMA32  = "fma32"
	opFMA16  = "fma16"
	opMAdd32 = "madd32"
	opRead   = "read"
	opWrite  = "write"
	opCopy   = "copy"
)

func validOp(op string) bool {
	switch op {
	case opFMA32, opFMA16, opMAdd32, opRead, opWrite, opCopy:
		return true
	}
	return false
}

type hostProgram struct {
	kernels map[string]string // name -> op
	unroll  uint32
}

func (s *hostSim) CreateProgram(src, buildOpts string) (types.Program, error) {
	unroll := uint32(1)
	for _, opt := range strings.Fields(buildOpts) {
		val, ok := strings.CutPrefix(opt, "-Dunroll=")
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil || n == 0 {
			return nil, types.BuildError{Log: fmt.Sprintf("invalid build option %q", opt)}
		}
		unroll = uint32(n)
	}

	kernels := make(map[string]string)
	var diag []string
	for i, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[0] != "kernel" {
			diag = append(diag, fmt.Sprintf("line %d: malformed kernel declaration: %q", i+1, line))
			continue
		}
		name, op := fields[1], fields[2]
		if !validOp(op) {
			diag = append(diag, fmt.Sprintf("line %d: unknown op %q", i+1, op))
			continue
		}
		kernels[name] = op
	}
	if len(diag) > 0 {
		return nil, types.BuildError{Log: strings.Join(diag, "\n")}
	}
	if len(kernels) == 0 {
		return nil, types.BuildError{Log: "source declares no kernels"}
	}
	return &hostProgram{kernels: kernels, unroll: unroll}, nil
}

func (p *hostProgram) Kernel(name string) (types.Kernel, error) {
	op, ok := p.kernels[name]
	if !ok {
		return nil, types.BuildError{Log: fmt.Sprintf("kernel %q not found in program", name)}
	}
	return &hostKernel{name: name, op: op, unroll: p.unroll}, nil
}

type hostKernel struct {
	name   string
	op     string
	unroll uint32
	args   [4]any

	// Accumulator the arithmetic ops fold into so the work cannot be
	// optimized away.
	sinkF float32
	sinkI int32
	sinkB byte
}

func (k *hostKernel) Name() string { return k.name }

func (k *hostKernel) SetArg(index int, value any) error {
	if index < 0 || index >= len(k.args) {
		return fmt.Errorf("kernel %q has no argument slot %d", k.name, index)
	}
	switch value.(type) {
	case types.Buffer, types.Image, uint32, uint64, int, float32, float64:
		k.args[index] = value
		return nil
	default:
		return fmt.Errorf("kernel %q argument %d: unsupported type %T", k.name, index, value)
	}
}

func (k *hostKernel) bufArg(index int) ([]byte, error) {
	b, ok := k.args[index].(*hostBuffer)
	if ok {
		if b.data == nil {
			return nil, fmt.Errorf("kernel %q argument %d: buffer released", k.name, index)
		}
		return b.data, nil
	}
	if img, ok := k.args[index].(*hostImage); ok {
		if img.data == nil {
			return nil, fmt.Errorf("kernel %q argument %d: image released", k.name, index)
		}
		return img.data, nil
	}
	return nil, fmt.Errorf("kernel %q argument %d: memory object required", k.name, index)
}

func (k *hostKernel) uintArg(index int, def uint64) uint64 {
	switch v := k.args[index].(type) {
	case uint32:
		return uint64(v)
	case uint64:
		return v
	case int:
		return uint64(v)
	default:
		return def
	}
}

// dispatch executes the op once per work item over a flat global size.
func (k *hostKernel) dispatch(nthread uint64) error {
	unroll := uint64(k.unroll)
	switch k.op {
	case opFMA32, opFMA16:
		// fp16 arithmetic is emulated in fp32 on the host.
		acc := k.sinkF
		for tid := uint64(0); tid < nthread; tid++ {
			for u := uint64(0); u < unroll; u++ {
				acc = acc*1.000001 + 0.5
			}
		}
		k.sinkF = acc
	case opMAdd32:
		acc := k.sinkI
		for tid := uint64(0); tid < nthread; tid++ {
			for u := uint64(0); u < unroll; u++ {
				acc = acc*3 + 1
			}
		}
		k.sinkI = acc
	case opRead:
		data, err := k.bufArg(0)
		if err != nil {
			return err
		}
		stride := k.uintArg(1, 1)
		if stride == 0 {
			stride = 1
		}
		size := uint64(len(data))
		acc := k.sinkB
		for tid := uint64(0); tid < nthread; tid++ {
			for u := uint64(0); u < unroll; u++ {
				acc ^= data[(tid*stride+u)%size]
			}
		}
		k.sinkB = acc
	case opWrite:
		data, err := k.bufArg(0)
		if err != nil {
			return err
		}
		stride := k.uintArg(1, 1)
		if stride == 0 {
			stride = 1
		}
		size := uint64(len(data))
		for tid := uint64(0); tid < nthread; tid++ {
			for u := uint64(0); u < unroll; u++ {
				data[(tid*stride+u)%size] = byte(tid)
			}
		}
	case opCopy:
		dst, err := k.bufArg(0)
		if err != nil {
			return err
		}
		src, err := k.bufArg(1)
		if err != nil {
			return err
		}
		n := uint64(len(src))
		if uint64(len(dst)) < n {
			n = uint64(len(dst))
		}
		for tid := uint64(0); tid < nthread; tid++ {
			i := tid % n
			dst[i] = src[i]
		}
	default:
		return errors.New("kernel op not implemented")
	}
	return nil
}
