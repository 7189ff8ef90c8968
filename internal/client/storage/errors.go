package storage

import "errors"

// Common client storage errors
var (
	// ErrSessionNotFound indicates that no session data exists (not logged in)
	ErrSessionNotFound = errors.New("session not found")

	// ErrRecordNotFound indicates that local record was not found
	ErrRecordNotFound = errors.New("local record not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
