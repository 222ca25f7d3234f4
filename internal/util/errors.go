package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrBadPredicate indicates a user supplied filter literal could not be compiled
	ErrBadPredicate = errors.New("bad predicate")

	// ErrSchemaConflict indicates a column affinity mismatch on insert
	ErrSchemaConflict = errors.New("schema conflict")

	// ErrUnplayable indicates a probe failed or found no streams
	ErrUnplayable = errors.New("unplayable file")

	// ErrRecoverable indicates an extractor failure worth retrying later
	ErrRecoverable = errors.New("recoverable extractor error")

	// ErrUnrecoverable indicates content that will never be fetchable again
	ErrUnrecoverable = errors.New("unrecoverable extractor error")

	// ErrAbortRun indicates an extractor failure that should stop the whole run
	ErrAbortRun = errors.New("extractor run aborted")

	// ErrNoMedia indicates a query matched nothing
	ErrNoMedia = errors.New("no media found")

	// ErrConflict indicates a destination file conflict
	ErrConflict = errors.New("destination conflict")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoAnswer indicates a confirmation prompt was dismissed
	ErrNoAnswer = errors.New("no answer")
)
