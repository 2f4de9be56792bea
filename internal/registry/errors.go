package registry

import "errors"

// ErrNotFound is returned when a connection identity has no record.
// Check with errors.Is().
var ErrNotFound = errors.New("registry: device not found")
