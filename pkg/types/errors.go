package types

import "fmt"

// BuildError reports a program compilation failure together with the
// backend's diagnostic log.
type BuildError struct {
	Log string
}

func (e BuildError) Error() string {
	return fmt.Sprintf("program build failed:\n%s", e.Log)
}

// DeviceNotFoundError reports an out-of-range device index.
type DeviceNotFoundError struct {
	Backend string
	Index   uint32
	Count   int
}

func (e DeviceNotFoundError) Error() string {
	return fmt.Sprintf("backend %q has %d device(s), index %d is out of range",
		e.Backend, e.Count, e.Index)
}
