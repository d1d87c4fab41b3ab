package service

import "errors"

var (
	// ErrValidation covers malformed URLs and request fields. Not retryable.
	ErrValidation = errors.New("validation failed")
	// ErrMaliciousURL is a validation failure raised by URL screening.
	ErrMaliciousURL = errors.New("malicious URL detected")
	// ErrNotFound means the short ID does not exist. Not retryable.
	ErrNotFound = errors.New("short link not found")
	// ErrInternal means storage could not be reached. Callers may retry.
	ErrInternal = errors.New("storage unavailable")
	// ErrShortIDGeneration means every generated ID collided.
	ErrShortIDGeneration = errors.New("failed to generate short ID")
)
