package service

import "errors"

// Domain errors surfaced by the operator-facing services.
var (
	ErrStoreUnavailable = errors.New("state store unavailable")
	ErrInvalidRelay     = errors.New("invalid relay: must be 1..4")
	ErrInvalidMode      = errors.New("invalid mode: must be OFF, FORCED_ON, AUTO or MANUAL")
	ErrEmptyPatch       = errors.New("config patch has no fields")
)
