package env

import "fmt"

// DuplicateAspectError reports that an aspect was started twice in one
// run. This is a programming error in the driver, not a retry.
type DuplicateAspectError struct {
	Aspect string
}

func (e DuplicateAspectError) Error() string {
	return fmt.Sprintf("aspect %q was already started in this run", e.Aspect)
}

// MissingDependencyError reports that an aspect required a
// prerequisite aspect that never started in this run, meaning the
// driver enumerated aspects out of dependency order.
type MissingDependencyError struct {
	Aspect string
	Dep    string
}

func (e MissingDependencyError) Error() string {
	return fmt.Sprintf("aspect %q depends on %q, which has not started in this run",
		e.Aspect, e.Dep)
}
