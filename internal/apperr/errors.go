// Package apperr holds the sentinel errors shared across packages.
// Callers wrap them with context and test with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")

	// Avatar pipeline.
	ErrFetch            = errors.New("fetch failed")
	ErrInvalidKey       = errors.New("invalid key")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrDecryption       = errors.New("decryption failed")
)
