package match

import "errors"

// Sentinel errors for the kinds enumerated in the matcher's error handling
// design. InputSchema is raised by internal/iotable before a Matcher is ever
// constructed; it is declared here too since both packages reason about the
// same sample schema.
var (
	ErrInputSchema       = errors.New("match: required input column missing")
	ErrOutOfRange        = errors.New("match: offset out of polyline range")
	ErrUnmatchable       = errors.New("match: decision stack exhausted")
	ErrDeadlineExceeded  = errors.New("match: running time budget exceeded")
	ErrInternalInvariant = errors.New("match: internal invariant violated")
)
