package database

import "errors"

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUniqueViolation is returned when an insert hits a uniqueness
	// constraint. getOrCreate flows treat it as "re-fetch and return the
	// existing row"; everything else surfaces it as a conflict.
	ErrUniqueViolation = errors.New("unique violation")
)
