package embedding

import "errors"

var (
	// ErrEmbedding is returned when texts could not be embedded after all retries.
	ErrEmbedding = errors.New("embedding failed")

	ErrMissingAPIKey = errors.New("API key not set")
)
