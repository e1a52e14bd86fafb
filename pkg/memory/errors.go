package memory

import "errors"

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("memory: not found")

// ErrConflict is returned when a uniqueness constraint would be violated,
// e.g. a duplicate (SourceID, TargetID, Type) relation or
// (MemoryID, CodeNodeID, Type) cross-layer relation.
var ErrConflict = errors.New("memory: conflict")
