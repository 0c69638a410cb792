package core

import "errors"

// Closed outcome taxonomy shared by every fallible index operation.
// A nil error means success. Composite operations short-circuit on the
// first failing step and propagate its sentinel unchanged; callers test
// with errors.Is.
var (
	// ErrFail is the generic precondition or logic failure: mismatched
	// value type, missing required config key, unavailable metadata.
	ErrFail = errors.New("sptree: operation failed")

	// ErrEmptyIndex is returned by save operations when the index holds
	// no live samples.
	ErrEmptyIndex = errors.New("sptree: empty index")

	// ErrFailedCreateFile is returned when a persistence output file
	// cannot be created.
	ErrFailedCreateFile = errors.New("sptree: failed to create file")

	// ErrFailedOpenFile is returned when a persistence input file
	// cannot be opened.
	ErrFailedOpenFile = errors.New("sptree: failed to open file")

	// ErrFailedParseValue is returned when an enumerated config value is
	// unrecognized or undefined.
	ErrFailedParseValue = errors.New("sptree: failed to parse value")

	// ErrVectorNotFound is returned by metadata-keyed lookup or delete
	// when the payload does not resolve to a live vector.
	ErrVectorNotFound = errors.New("sptree: vector not found")
)
