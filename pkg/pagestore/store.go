// Package pagestore implements the page-addressed persistent byte array that
// the buffer pool manager treats as its backing store: a narrow capability
// set (allocate, deallocate, write, read, exists) plus one concrete,
// file-backed implementation.
package pagestore

import (
	"context"
	"errors"
	"fmt"
)

// PageID identifies a page in the backing store. Valid ids start at zero, so
// "no page" is tracked with a separate boolean rather than a sentinel value.
type PageID uint32

// ErrNotFound is returned by Read/Exists-adjacent calls for a page that was
// never allocated or has since been deallocated.
var ErrNotFound = errors.New("pagestore: page not found")

// ErrBadSize is returned by Write when the supplied buffer does not match
// the store's page size exactly.
var ErrBadSize = errors.New("pagestore: buffer size does not match page size")

// ErrCorrupted is returned by Read, wrapped in a StoreError, when a page's
// on-disk checksum does not match its content.
var ErrCorrupted = errors.New("pagestore: page checksum mismatch")

// StoreError wraps a failure the store reports together with the operation
// that failed (I/O errors, a checksum mismatch, a write to a missing page,
// ...). A typed sentinel such as ErrCorrupted may be the wrapped error, so
// callers detect it with errors.Is. The buffer
// pool manager never interprets a StoreError; it surfaces it to the caller
// as-is.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("pagestore: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// Store is the capability set the buffer pool manager consumes. A Store is
// serialized internally — the manager may call it while holding its own
// lock, and every implementation must be safe to use that way.
type Store interface {
	// Allocate returns a fresh PageID whose content is an all-zero
	// PageSize() buffer, persisted before Allocate returns.
	Allocate(ctx context.Context) (PageID, error)

	// Deallocate removes a page. Subsequent Exists/Read on it must
	// return false/ErrNotFound.
	Deallocate(ctx context.Context, id PageID) error

	// Write replaces a page's content. len(data) must equal PageSize();
	// ErrBadSize otherwise.
	Write(ctx context.Context, id PageID, data []byte) error

	// Read returns a copy of a page's current content. ErrNotFound if
	// the page was never allocated or has been deallocated.
	Read(ctx context.Context, id PageID) ([]byte, error)

	// Exists reports whether id currently names a live page.
	Exists(ctx context.Context, id PageID) (bool, error)

	// PageSize is the fixed size, in bytes, of every page this store
	// holds.
	PageSize() int
}
