package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnsupportedProvider indicates the provider has no OAuth adapter
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrTokenExpired indicates the API bearer token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the API bearer token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrNotConnected indicates the credential has no usable access token
	ErrNotConnected = errors.New("platform account not connected")

	// ErrNoRefreshToken indicates a refresh was requested for a credential without one
	ErrNoRefreshToken = errors.New("credential has no refresh token")

	// ErrGeneratorUnavailable indicates no content generator is configured
	ErrGeneratorUnavailable = errors.New("content generator unavailable")

	// ErrPublisherUnavailable indicates no publisher is registered for the provider
	ErrPublisherUnavailable = errors.New("publisher unavailable")

	// ErrServiceUnavailable indicates an external service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)
