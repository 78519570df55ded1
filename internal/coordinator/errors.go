package coordinator

import "errors"

var (
	ErrAlreadyRunning = errors.New("synchronization is already running")
	ErrNotRunning     = errors.New("synchronization is not running")
	ErrNoTransport    = errors.New("no transport configured")
)
