package model

import "errors"

// Error definitions for the model package.
var (
	ErrInvalidModel       = errors.New("invalid model: key must resolve to a non-nil Model")
	ErrUnknownModel       = errors.New("model not found in catalog")
	ErrInstantiation      = errors.New("model instantiation failed")
	ErrKeyEmpty           = errors.New("model key must not be empty")
	ErrKeyMalformed       = errors.New("model key must not contain commas or surrounding whitespace")
	ErrAlreadyRegistered  = errors.New("model is already registered in the catalog")
	ErrNilHost            = errors.New("host must not be nil")
	ErrNotInitialized     = errors.New("model registry is not initialized")
	ErrAlreadyInitialized = errors.New("model registry is already initialized")
	ErrRegistryClosed     = errors.New("model registry is closed")
)
