// Package storage defines the input file-system abstraction.
package storage

import "github.com/starford/fmschema/internal/models"

// Provider is the interface for input file operations. Paths are slash
// separated and relative to the provider root.
type Provider interface {
	// List returns metadata for every regular file matching pattern,
	// sorted by path. Patterns support "**".
	List(pattern string) ([]models.DocumentMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Root returns the absolute directory the provider serves.
	Root() string
}
