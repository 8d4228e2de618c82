package worker

import "errors"

// ErrAbandoned is recorded on jobs still queued when the pool stops before
// draining them.
var ErrAbandoned = errors.New("abandoned at shutdown")
