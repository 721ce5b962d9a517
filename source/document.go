// Package source reads the raw text the authoring tools work on: solver
// sources from the local tree and problem descriptions from local files or
// public web pages.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Kind says where a Document came from.
type Kind string

// Document kinds.
const (
	KindFile Kind = "file"
	KindURL  Kind = "url"
)

// Document is the text behind one path or URL.
type Document struct {
	// Location is the path or URL as requested.
	Location string `json:"location"`

	// Path is the resolved absolute path for files, the final URL for web pages.
	Path string `json:"path"`

	Kind        Kind   `json:"kind"`
	Title       string `json:"title,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`

	// Hash is the sha256 of the raw bytes read, before any conversion.
	Hash string `json:"hash"`

	Size      int64     `json:"size"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ContentHash returns the hex sha256 of content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
