package buildsys

import (
	"fmt"
	"strings"
)

// CyclicEvaluationError is returned when evaluation dependencies between subprojects form a cycle
type CyclicEvaluationError struct {
	Cycle []string
}

var _ error = (*CyclicEvaluationError)(nil)

func (e CyclicEvaluationError) Error() string {
	return fmt.Sprintf("evaluation dependencies form a cycle: %s", strings.Join(e.Cycle, " -> "))
}

// UndeclaredProjectError is returned when an evaluation dependency or property lookup names a subproject
// that was never included
type UndeclaredProjectError struct {
	From   string
	Target string
}

var _ error = (*UndeclaredProjectError)(nil)

func (e UndeclaredProjectError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("project %s was not declared with include()", e.Target)
	}
	return fmt.Sprintf("project %s depends on %s which was not declared with include()", e.From, e.Target)
}

// FilesystemError is returned when an output directory can't be created or removed
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

var _ error = (*FilesystemError)(nil)

func (e FilesystemError) Error() string {
	return fmt.Sprintf("failed to %s %s: %s", e.Op, e.Path, e.Err)
}

func (e FilesystemError) Unwrap() error {
	return e.Err
}
