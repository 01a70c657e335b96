package optimizer

import "errors"

// ErrInvalidArgument is returned for nil/malformed arguments.
var ErrInvalidArgument = errors.New("optimizer: invalid argument")

// ErrBufferLocked is returned when the target registry is already locked by
// another in-progress optimization.
var ErrBufferLocked = errors.New("optimizer: output buffer is locked")

// ErrInternal wraps an unexpected failure from a collaborator (DataManager
// projection, NodeChecker application) that the optimizer cannot recover
// from on its own.
var ErrInternal = errors.New("optimizer: internal error")

// ErrRollbackRequired is returned (wrapping the triggering cause) when an
// optimization pass fails after partially mutating the registry's locked
// state and a rollback was performed to restore it. Callers see this as a
// distinct sentinel so they know the registry's prior output is still
// valid and unchanged, not merely "some error happened".
var ErrRollbackRequired = errors.New("optimizer: rolled back after failure")

// not-optimizable and no-solution are NOT modeled as errors: OptimizeFast
// returns (0, nil) for both, since neither indicates a problem the caller
// needs to handle — they are ordinary "there was nothing (more) to do"
// outcomes.
