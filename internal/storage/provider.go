// Package storage defines the image-directory abstraction used for plaintext
// avatars and encrypted blobs.
package storage

import "github.com/starford/evolve/internal/models"

// Provider is the interface for image directory operations.
type Provider interface {
	// List returns metadata for every file with the given extension directly
	// under the root. An empty ext lists every regular file.
	List(ext string) ([]models.FileMeta, error)
	// Read returns the raw bytes of the file at name (relative to root).
	Read(name string) ([]byte, error)
	// Write atomically writes content to name (relative to root).
	Write(name string, content []byte) error
	// Create is Write that fails with apperr.ErrAlreadyExists when name exists.
	Create(name string, content []byte) error
	// Exists reports whether name is a regular file under root.
	Exists(name string) bool
}
