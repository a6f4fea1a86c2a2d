package models

import "errors"

// Error constants for authentication and scope resolution
var (
	ErrUnauthorized    = errors.New("invalid or missing API key")
	ErrClientInactive  = errors.New("client account is inactive")
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectInactive = errors.New("project is inactive")
	ErrNotOwned        = errors.New("project not owned by client")
)

// Error constants for OTP issuance
var (
	ErrInsufficientTokens = errors.New("insufficient tokens")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrInvalidChannel     = errors.New("invalid channel")
	ErrInvalidTarget      = errors.New("invalid target")
	ErrDispatchFailed     = errors.New("failed to enqueue OTP delivery")
)

// Error constants for admin operations
var (
	ErrClientNotFound = errors.New("client not found")
	ErrInvalidTokens  = errors.New("token amount must be positive")
)
