package queue

import "errors"

// Sentinel errors returned by Enqueue.
var (
	ErrClosed = errors.New("import queue closed")
	ErrFull   = errors.New("import queue full")
)
