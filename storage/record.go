// Package storage persists solver descriptors. Identity and timestamps live
// on the Record wrapper; the descriptor itself carries neither.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/c360studio/semsolver/descriptor"
	"github.com/google/uuid"
)

// Origin says how a descriptor's regions were obtained.
type Origin string

// Origins.
const (
	OriginManual      Origin = "manual"
	OriginTransformed Origin = "transformed"
)

// Provenance records where a descriptor came from.
type Provenance struct {
	// Path is the solver source path or URL.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Hash is the content hash of the source the regions were taken from.
	Hash   string `json:"hash,omitempty" yaml:"hash,omitempty"`
	Origin Origin `json:"origin,omitempty" yaml:"origin,omitempty"`

	// RequestID links transformed descriptors to the transform that produced them.
	RequestID string `json:"request_id,omitempty" yaml:"request_id,omitempty"`
}

// Record is a stored descriptor.
type Record struct {
	ID         string                      `json:"id" yaml:"id"`
	Descriptor descriptor.SolverDescriptor `json:"descriptor" yaml:"descriptor"`
	Source     Provenance                  `json:"source" yaml:"source"`
	CreatedAt  time.Time                   `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time                   `json:"updated_at" yaml:"updated_at"`
}

// Store is implemented by every descriptor backend.
type Store interface {
	// Save validates and writes r. An empty ID is assigned; an existing ID
	// is overwritten and keeps its CreatedAt. The ID is returned.
	Save(ctx context.Context, r *Record) (string, error)

	// Get returns ErrNotFound when id is unknown.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns all records, oldest first.
	List(ctx context.Context) ([]*Record, error)

	// Delete returns ErrNotFound when id is unknown.
	Delete(ctx context.Context, id string) error
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateID rejects IDs that are not usable as KV keys or row keys.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// NewID returns a fresh record ID.
func NewID() string {
	return uuid.New().String()
}

// Prepare runs the checks every Save performs: the descriptor must be
// complete and the ID valid. It assigns an ID when r has none and stamps
// UpdatedAt (and CreatedAt for new records) with now.
func Prepare(r *Record, now time.Time) error {
	if r == nil {
		return fmt.Errorf("nil record")
	}
	if err := r.Descriptor.Complete(); err != nil {
		return fmt.Errorf("save descriptor: %w", err)
	}
	if r.ID == "" {
		r.ID = NewID()
	}
	if err := ValidateID(r.ID); err != nil {
		return err
	}
	now = now.UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}

// SortRecords orders records oldest first, then by ID.
func SortRecords(records []*Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}
