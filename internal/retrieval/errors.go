package retrieval

import "errors"

// ErrInvalidQuery is returned for a blank query or a non-positive k.
var ErrInvalidQuery = errors.New("invalid query")
