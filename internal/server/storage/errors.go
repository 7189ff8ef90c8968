package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this username already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrTokenNotFound indicates that refresh token was not found
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrRecordNotFound indicates that financial record was not found
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordAlreadyExists indicates that record with this id already exists
	ErrRecordAlreadyExists = errors.New("record already exists")

	// ErrVersionMismatch indicates that compare-and-swap update lost the race:
	// the record's version changed since it was read
	ErrVersionMismatch = errors.New("record version mismatch")

	// ErrConflictNotFound indicates that conflict entry was not found
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrConflictAlreadyResolved indicates an attempt to resolve a conflict
	// that has already left the open state
	ErrConflictAlreadyResolved = errors.New("conflict already resolved")

	// ErrDeltaNotFound indicates that ledger delta was not found
	ErrDeltaNotFound = errors.New("delta not found")

	// ErrSnapshotNotFound indicates that no snapshot matched the query
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotCorrupted indicates that a stored snapshot failed its
	// integrity hash verification on read
	ErrSnapshotCorrupted = errors.New("snapshot corrupted")
)
