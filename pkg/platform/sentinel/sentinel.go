package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Event stores return these
// (optionally wrapped) and the activity-log service translates them into
// domain errors:
// - ErrNotFound: no event with the requested id
// - ErrConflict: an event with the same id already exists
// - ErrUnavailable: the backing database or cache cannot be reached
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
