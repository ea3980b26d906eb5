package document

import "errors"

var (
	ErrEmptyResult      = errors.New("no pages extracted")
	ErrUnsupportedInput = errors.New("unsupported document type")
	ErrInvalidPageKey   = errors.New("invalid page key")
)
