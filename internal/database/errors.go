package database

import "errors"

var (
	ErrEmptyPath     = errors.New("database path cannot be empty")
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timed out")
	ErrInvalidRecord = errors.New("session record is missing device_id")
)
