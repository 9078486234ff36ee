package store

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable is matched by every error caused by the storage
// medium (closed handle, I/O failure, locked database, ...).
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrInvalidKey is returned for keys with no parts or a part that is
// not valid UTF-8.
var ErrInvalidKey = errors.New("invalid key")

// ErrVersionRegression is returned when SetVersion would lower the version.
// Only Reset may do that.
var ErrVersionRegression = errors.New("schema version cannot decrease")

var errClosed = errors.New("store is closed")

// StorageError describes a failed store operation.
type StorageError struct {
	// Op is the store operation, e.g. "get" or "reset".
	Op string
	// Key is the affected key, if any.
	Key string
	// Err is the driver error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStorageUnavailable) hold for every StorageError.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// IsUnavailable reports whether err was caused by the storage medium.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

func storageErr(op string, key Key, err error) error {
	se := &StorageError{Op: op, Err: err}
	if key != nil {
		se.Key = key.String()
	}
	return se
}
