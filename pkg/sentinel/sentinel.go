package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// so services can translate them into domain errors.
//
// These represent factual states about stored entities, not validation
// failures:
// - ErrNotFound: entity does not exist under the key
// - ErrConflict: create-if-absent lost the race, an entity already exists
// - ErrSizeExceeded: value does not fit the entity's allocated size
// - ErrUnavailable: backing store temporarily unreachable
//
// For validation errors (bad input, phase rules), use pkg/domainerrors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrSizeExceeded = errors.New("size exceeded")
	ErrUnavailable  = errors.New("unavailable")
)
