// Package common holds the collection catalogue, sentinel errors and small
// helpers shared by the client and the reference server. Callers match the
// errors with errors.Is.
package common

import "errors"

var (
	// ErrNotFound reports a record id that does not exist in the target store.
	ErrNotFound = errors.New("not found")

	// ErrInvalidQuery reports an index lookup with an absent value or an
	// undeclared index.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrUnknownCollection reports a collection name outside the catalogue.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrInvalidPayload reports record data that cannot be decoded.
	ErrInvalidPayload = errors.New("invalid payload")
)
