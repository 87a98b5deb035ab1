package port

import "errors"

var (
	// ErrVersionConflict is returned when a conditional write finds a different row version
	ErrVersionConflict = errors.New("row version conflict")

	// ErrSerialization is returned when a transaction lost a race and may be retried
	ErrSerialization = errors.New("serialization failure")

	// ErrNotFound is returned when a conditional write finds no row
	ErrNotFound = errors.New("not found")
)
