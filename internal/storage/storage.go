// Package storage provides backup artifact storage over pluggable
// backends. A Provider wraps a backend Operator and layers listing,
// streaming, and retention on top of five backend primitives.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Entry describes a single object held by a backend.
type Entry struct {
	// Path is the backend-relative path used to address the object.
	Path string
	// Name is the final path element.
	Name string
	// IsFile is false for directory placeholders some backends report.
	IsFile bool
	// Size in bytes. Zero when the backend could not determine it.
	Size int64
	// LastModified as reported by the backend.
	LastModified time.Time
}

// ListOptions controls Provider listing behavior.
type ListOptions struct {
	// LatestOnly reduces the result to the single most recent entry,
	// judged by the timestamp embedded in the entry name.
	LatestOnly bool
	// Limit caps how many objects are fetched from the backend before
	// filtering. Zero applies DefaultListLimit.
	Limit int
}

// DefaultListLimit bounds a listing when the caller does not set one.
const DefaultListLimit = 1000

// ErrNoEntries is returned by latest-only listings over an empty store.
var ErrNoEntries = errors.New("no backup entries found")

// Reader is the handle a backend returns for an open object. Both
// backends hand back types that support random access, which the
// chunked stream relies on.
type Reader interface {
	io.Reader
	io.ReaderAt
	io.Closer
}

// Operator is the minimal capability set a storage backend must
// implement. Everything else the package offers is composed from
// these five primitives.
type Operator interface {
	// List walks the backend recursively and returns up to limit
	// entries in backend order.
	List(ctx context.Context, limit int) ([]Entry, error)
	// Stat fetches metadata for a single object.
	Stat(ctx context.Context, path string) (Entry, error)
	// Open returns a reader over the object's full content.
	Open(ctx context.Context, path string) (Reader, error)
	// Write stores the reader's content at path, creating parent
	// structure as needed and replacing any existing object.
	Write(ctx context.Context, path string, r io.Reader) error
	// Delete removes the object. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, path string) error
}

// StorageError wraps a backend failure with the operation and path
// that produced it.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
