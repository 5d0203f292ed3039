package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and collaborator adapters return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: entity does not exist in the store
//   - ErrConflict: a uniqueness constraint was hit (e.g. a second decision for one application)
//   - ErrInvalidState: entity is in the wrong lifecycle state for the requested write
//   - ErrUnavailable: a dependency is temporarily unreachable
//
// Validation failures belong in pkg/domain-errors, not here.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
