package mission

import "errors"

// ErrValidation marks bad input or bad entity state supplied by the
// caller (missing coverage area, overlap out of range, unknown pattern).
var ErrValidation = errors.New("validation failed")

// ErrIllegalState marks an operation that the mission's current status
// does not allow (starting a running mission, editing during execution).
var ErrIllegalState = errors.New("illegal state")
