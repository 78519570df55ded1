package notify

import "errors"

var (
	ErrAlreadyRunning = errors.New("notifier is already running")
	ErrNotRunning     = errors.New("notifier is not running")
)
