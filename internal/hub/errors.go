package hub

import "errors"

// ErrSessionClosed is returned by Send when the target connection no longer
// has a live, registered session. Check with errors.Is().
var ErrSessionClosed = errors.New("hub: session closed")
