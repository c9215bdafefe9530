// Package cerrors defines the typed error taxonomy shared by the query,
// index, and search layers.
package cerrors

import "errors"

// Failure represents an unrecoverable infrastructure or corruption error.
// It always propagates and short-circuits fan-out aggregation.
type Failure struct {
	Op  string
	Err error
}

func (e *Failure) Error() string {
	if e.Err == nil {
		return "failure: " + e.Op
	}
	return "failure: " + e.Op + ": " + e.Err.Error()
}

func (e *Failure) Unwrap() error { return e.Err }

// NewFailure wraps err as a Failure tagged with the operation that failed.
func NewFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Failure{Op: op, Err: err}
}

// SchemaMismatch means a query does not apply to a given sheet's schema.
// It is semantically "not applicable here" and is silently skipped during
// fan-out, never surfaced to the caller as a warning or error.
type SchemaMismatch struct {
	Sheet string
	Field string
}

func (e *SchemaMismatch) Error() string {
	return "field " + e.Field + " does not exist on sheet " + e.Sheet
}

// Invalid represents malformed caller input (a filter string, a query
// shape) and is returned to the caller as an input error.
type Invalid struct {
	Reason string
}

func (e *Invalid) Error() string { return "invalid input: " + e.Reason }

// NewInvalid builds an Invalid error from a reason string.
func NewInvalid(reason string) error { return &Invalid{Reason: reason} }

// NotReady means a version key is known to the catalog but has not yet
// been ingested by the search engine.
type NotReady struct {
	Key string
}

func (e *NotReady) Error() string { return "version not ready: " + e.Key }

// IsFailure reports whether err (or anything it wraps) is a Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

// IsSchemaMismatch reports whether err is a SchemaMismatch.
func IsSchemaMismatch(err error) bool {
	var m *SchemaMismatch
	return errors.As(err, &m)
}
