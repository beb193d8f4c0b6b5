package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate means the item already exists; expected, not a failure.
	ErrDuplicate = errors.New("duplicate content item")
	// ErrNotFound is returned for unknown source or item identifiers.
	ErrNotFound = errors.New("not found")
)

// TransientError marks a retryable fetch failure: timeout, 5xx, rate-limit
// signal. The backoff controller retries these up to its attempt cap.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a non-retryable fetch failure: 404, revoked auth,
// malformed feed. Propagates immediately without retry.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

func Transient(op string, err error) error { return &TransientError{Op: op, Err: err} }
func Permanent(op string, err error) error { return &PermanentError{Op: op, Err: err} }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// StorageError wraps a persistence-layer failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// ConfigError means a source or registry definition is unusable. It fails
// fast, before any network call.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}
