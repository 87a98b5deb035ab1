package workflow

import "errors"

var (
	// ErrDuplicateRule is returned when two rules share the same from/to pair
	ErrDuplicateRule = errors.New("duplicate transition rule")

	// ErrInvalidStatus is returned when a rule names an unknown status
	ErrInvalidStatus = errors.New("invalid status")

	// ErrNoRoles is returned when a rule has no required roles
	ErrNoRoles = errors.New("transition rule requires at least one role")
)
