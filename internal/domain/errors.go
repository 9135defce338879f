package domain

import "errors"

// Errores centinela del nucleo. El transporte HTTP los mapea a status codes.
var (
	ErrAuthRequired        = errors.New("authentication required")
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrRateLimited         = errors.New("rate limited")
)
