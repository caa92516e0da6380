package storage

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStorageFailure is returned when the durable store rejected a write.
	// The transaction was rolled back in full and is safe to retry.
	ErrStorageFailure = errors.New("storage failure")

	// ErrReadOnly is returned when a read-only transaction tries to write.
	ErrReadOnly = errors.New("write in read-only transaction")

	// ErrCollectionNotHeld is returned when a transaction touches a
	// collection it did not acquire.
	ErrCollectionNotHeld = errors.New("collection not acquired by transaction")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// StorageError carries the failed operation and the collections involved.
type StorageError struct {
	Op          string
	Collections []Collection
	Err         error
}

func (e *StorageError) Error() string {
	names := make([]string, len(e.Collections))
	for i, c := range e.Collections {
		names[i] = string(c)
	}
	return fmt.Sprintf("storage failure during %s [%s]: %v", e.Op, strings.Join(names, ","), e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Err}
}

// CollectionError names the offending collection for ErrReadOnly and
// ErrCollectionNotHeld.
type CollectionError struct {
	Collection Collection
	Err        error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collection, e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}
