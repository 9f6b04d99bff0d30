package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Storage backends and upstream
// clients return these (optionally wrapped) so services can translate them
// into domain errors.
//
//   - ErrNotFound: key or record does not exist
//   - ErrExpired: stored credential is past its expiration instant
//   - ErrInvalidState: stored value cannot be interpreted
//   - ErrUnavailable: backing service or upstream temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
