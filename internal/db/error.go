package db

import (
	"errors"
	"fmt"
)

// DuplicateKeyError is returned when a document with the same key is already
// stored in the collection.
type DuplicateKeyError struct {
	Collection string
	Key        string
	Message    string
}

func (e *DuplicateKeyError) Error() string {
	if e.Collection == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s (key %s)", e.Collection, e.Message, e.Key)
}

func IsDuplicateKeyError(err error) bool {
	var target *DuplicateKeyError
	return errors.As(err, &target)
}

// NotFoundError is returned when no document matches the key.
type NotFoundError struct {
	Collection string
	Key        string
	Message    string
}

func (e *NotFoundError) Error() string {
	if e.Collection == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s (key %s)", e.Collection, e.Message, e.Key)
}

func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
