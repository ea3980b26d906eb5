package answer

import "errors"

// ErrGeneration is returned when the language model call fails.
var ErrGeneration = errors.New("answer generation failed")
