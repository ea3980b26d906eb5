package storage

import "errors"

var (
	// ErrNotFound is returned when reading from a collection that was never created.
	ErrNotFound = errors.New("collection not found")

	// ErrCorruptIndex is returned when the persisted store cannot be read or
	// holds malformed records.
	ErrCorruptIndex = errors.New("corrupt index")

	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrMetricMismatch    = errors.New("distance metric mismatch")
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrUnknownMetric     = errors.New("unknown distance metric")
)
