package ir

import (
	"errors"
	"fmt"
)

// ErrSerialization is matched by every SerializationError.
var ErrSerialization = errors.New("record is not serializable")

// SerializationError reports a record value that has no canonical encoding
// (NaN, infinities, invalid UTF-8, channels, functions, ...).
type SerializationError struct {
	// Path locates the offending value, e.g. `$.status["support"][2]`.
	Path string
	// Reason is a human-readable description.
	Reason string
}

func (e *SerializationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("serialization error: %s", e.Reason)
	}
	return fmt.Sprintf("serialization error at %s: %s", e.Path, e.Reason)
}

// Is makes errors.Is(err, ErrSerialization) hold for every SerializationError.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerialization
}

func serializationErr(path, format string, args ...any) error {
	if path == "" {
		path = "$"
	}
	return &SerializationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// IsSerializationError reports whether err is (or wraps) a SerializationError.
func IsSerializationError(err error) bool {
	return errors.Is(err, ErrSerialization)
}
