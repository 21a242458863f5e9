package plumbing

import (
	"errors"
	"fmt"
)

var (
	// ErrStop is used to stop a ForEach function in an Iter
	ErrStop = errors.New("stop iter")
)

// noSuchObject is an error type that occurs when no object with a given
// object ID is available.
type noSuchObject struct {
	oid Hash
}

func (e *noSuchObject) Error() string {
	return fmt.Sprintf("strata: no such object: %s", e.oid)
}

// NoSuchObject creates a new error representing a missing object with a
// given object ID.
func NoSuchObject(oid Hash) error {
	return &noSuchObject{oid: oid}
}

// IsNoSuchObject indicates whether an error is a noSuchObject and is
// non-nil.
func IsNoSuchObject(e error) bool {
	var err *noSuchObject
	return errors.As(e, &err)
}

// InvalidHashLengthError reports a serialized id whose length does not
// match its declared kind. It signals corruption, not user error.
type InvalidHashLengthError struct {
	Len int
}

func (e *InvalidHashLengthError) Error() string {
	return fmt.Sprintf("strata: invalid hash length %d", e.Len)
}

type InvalidChangeIDError struct {
	Text string
}

func (e *InvalidChangeIDError) Error() string {
	return fmt.Sprintf("strata: '%s' not a valid change id", e.Text)
}

// UnsupportedError reports a backend feature that the active backend does
// not implement.
type UnsupportedError struct {
	Op string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("strata: backend does not support %s", e.Op)
}
