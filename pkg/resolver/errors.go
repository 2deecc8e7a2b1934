package resolver

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by repositories which don't contain the requested artifact
var ErrNotFound = eris.New("artifact not found")

// ResolutionError is returned when a declared coordinate can't be resolved from the declared repositories
type ResolutionError struct {
	Coordinate   Coordinate
	Repositories []string
	Err          error
}

var _ error = (*ResolutionError)(nil)

func (e ResolutionError) Error() string {
	if e.Err != nil && !eris.Is(e.Err, ErrNotFound) {
		return fmt.Sprintf("could not resolve %s: %s", e.Coordinate, e.Err.Error())
	}

	return fmt.Sprintf("could not resolve %s, searched in: %s", e.Coordinate, strings.Join(e.Repositories, ", "))
}

func (e ResolutionError) Unwrap() error {
	return e.Err
}

// ChecksumError is returned when a downloaded artifact doesn't match the pinned checksum
type ChecksumError struct {
	Coordinate Coordinate
	Expected   string
	Actual     string
}

var _ error = (*ChecksumError)(nil)

func (e ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s but got %s", e.Coordinate, e.Expected, e.Actual)
}
