package core

import "errors"

// Common errors.
var (
	ErrNotFound       = errors.New("record not found")
	ErrReadOnly       = errors.New("repository is in read-only mode")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrInvalidKey     = errors.New("invalid key")
	ErrMissingKey     = errors.New("document has no key")
	ErrUnknownModel   = errors.New("unknown model")
	ErrNotPopulatable = errors.New("field cannot be populated")
)
