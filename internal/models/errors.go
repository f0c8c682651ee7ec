package models

import "errors"

// Sentinel errors for the engine's error taxonomy. Callers match with errors.Is;
// components wrap these with fmt.Errorf("...: %w", Err...) to add context.
var (
	// ErrInvalidArgument reports a caller mistake: bad chunk size, negative
	// top-k, or a mismatched embedding dimension.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrExtraction reports that an external decoder failed on a source.
	ErrExtraction = errors.New("extraction failed")

	// ErrEmbedding reports that the embedding provider failed or returned a
	// zero or non-finite vector.
	ErrEmbedding = errors.New("embedding failed")

	// ErrNotFound reports an unknown document ID.
	ErrNotFound = errors.New("not found")

	// ErrStorage reports a persistence (database or snapshot) failure.
	ErrStorage = errors.New("storage failure")
)
