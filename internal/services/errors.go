package services

import "errors"

var (
	// ErrInvalidTransition is returned when a requested state change
	// violates the lifecycle guards (e.g. validating a quote twice).
	// Surfaced to the caller, never retried.
	ErrInvalidTransition = errors.New("invalid quote transition")

	// ErrRetentionLocked flags a restore attempt on a quote still inside
	// its legal retention horizon.
	ErrRetentionLocked = errors.New("quote under legal retention")

	// ErrQuoteNotFound wraps the missing-row case so handlers do not need
	// to know about gorm sentinels.
	ErrQuoteNotFound = errors.New("quote not found")
)
