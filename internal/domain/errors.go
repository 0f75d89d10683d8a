package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound          = errors.New("domain: not found")
	ErrUnauthorized      = errors.New("domain: unauthorized")
	ErrAlreadySubscribed = errors.New("domain: session already subscribed")
	ErrQueueOverflow     = errors.New("domain: session outbound queue overflow")
	ErrBoardUnavailable  = errors.New("domain: board actor unavailable")
)
