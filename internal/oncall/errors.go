package oncall

import "errors"

// Command errors.
var (
	ErrNotCommand      = errors.New("not an /oncall command")
	ErrMissingSeverity = errors.New("could not parse command - severity is required")
)

// Reference data errors.
var (
	ErrNoCreatedState        = errors.New("no incident state is flagged as created")
	ErrAmbiguousCreatedState = errors.New("more than one incident state is flagged as created")
)
