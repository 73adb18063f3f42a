package snapshot

import "errors"

var (
	// Snapshot validation errors
	ErrInvalidSnapshotID = errors.New("invalid snapshot ID")
	ErrInvalidSessionID  = errors.New("invalid session ID")
	ErrNilGraph          = errors.New("snapshot graph cannot be nil")
	ErrSnapshotNotFound  = errors.New("snapshot not found")

	// Filter validation errors
	ErrInvalidLimit     = errors.New("limit cannot be negative")
	ErrInvalidOffset    = errors.New("offset cannot be negative")
	ErrInvalidTimeRange = errors.New("invalid time range: since is after before")
)
