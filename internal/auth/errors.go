package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")
)

// ErrInvalidToken indicates a token failed extraction, verification, or
// resolution. It always maps to an Unauthorized response.
var ErrInvalidToken = errors.New("auth: invalid token")
