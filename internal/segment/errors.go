package segment

import "errors"

var (
	// ErrInvalidConfig is returned when chunk size or overlap are out of range.
	ErrInvalidConfig = errors.New("invalid segmenter configuration")

	// ErrEmptyResult is returned when no page of a document produced a chunk.
	ErrEmptyResult = errors.New("no chunks produced")
)
