package models

import "errors"

// Business errors recognized across the repository, service and API layers.
// Handlers map these to distinct HTTP statuses and error codes instead of
// embedding failure strings in success-shaped payloads.
var (
	ErrValidation          = errors.New("invalid input")
	ErrNotFound            = errors.New("resource not found")
	ErrForbidden           = errors.New("operation not permitted")
	ErrDuplicateUser       = errors.New("username already taken")
	ErrAmbiguousName       = errors.New("display name matches more than one user")
	ErrSelfGift            = errors.New("cannot give roses to your own idea")
	ErrOutOfStock          = errors.New("requested quantity exceeds available stock")
	ErrInsufficientBalance = errors.New("insufficient rose balance")
)
