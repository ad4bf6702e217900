// Package models defines the shared document types.
package models

import "time"

// Document is one input file after frontmatter extraction.
type Document struct {
	Path        string         `json:"path"`
	Checksum    string         `json:"checksum"`
	Format      string         `json:"format"`
	Frontmatter map[string]any `json:"frontmatter"`
	BodyLen     int            `json:"body_len"`
	Cached      bool           `json:"cached,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DocumentMeta is the lightweight listing entry returned by storage.
type DocumentMeta struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
