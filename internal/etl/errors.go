package etl

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrObjectNotFound is returned by object stores for a missing key or bucket.
var ErrObjectNotFound = errors.New("object does not exist")

// ParseError reports a source file that cannot be parsed at all, as opposed
// to individual malformed lines, which are dropped.
type ParseError struct {
	Source string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %s", e.Source, e.Reason)
}
