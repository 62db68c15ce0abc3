package state

import "fmt"

// ConflictError indicates a compare-and-append write lost the race: the
// key's current revision did not match the caller's expectation.
type ConflictError struct {
	Key      string
	Expected int64
	Current  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict on %q: expected %d, current is %d",
		e.Key, e.Expected, e.Current)
}

// NewConflictError creates a new ConflictError.
func NewConflictError(key string, expected, current int64) *ConflictError {
	return &ConflictError{Key: key, Expected: expected, Current: current}
}

// NotFoundError indicates a key or revision does not exist.
type NotFoundError struct {
	Key      string
	Revision int64
}

func (e *NotFoundError) Error() string {
	if e.Revision > 0 {
		return fmt.Sprintf("key %q has no revision %d", e.Key, e.Revision)
	}
	return fmt.Sprintf("key %q not found", e.Key)
}

// NewNotFoundError creates a new NotFoundError for a key's latest revision.
func NewNotFoundError(key string) *NotFoundError {
	return &NotFoundError{Key: key}
}

// NewRevisionNotFoundError creates a new NotFoundError for a specific revision.
func NewRevisionNotFoundError(key string, revision int64) *NotFoundError {
	return &NotFoundError{Key: key, Revision: revision}
}

// StorageError indicates a backend operation failed.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error in %s backend during %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, op string, err error) *StorageError {
	return &StorageError{Backend: backend, Op: op, Err: err}
}

// IntegrityError indicates stored data violates the store's invariants,
// such as a gap in a key's revision sequence.
type IntegrityError struct {
	Key    string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("state integrity failure on %q: %s", e.Key, e.Detail)
}

// NewIntegrityError creates a new IntegrityError.
func NewIntegrityError(key, detail string) *IntegrityError {
	return &IntegrityError{Key: key, Detail: detail}
}
