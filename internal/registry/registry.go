// Package registry implements the ResultRegistry collaborator: the single
// authoritative slot holding "the" current output buffer for an
// anonymization result, plus the lock protocol a LocalRecodingOptimizer
// uses to safely refine it in place. A single mutable slot is guarded
// behind a sync.RWMutex, distinguishing a cheap cached-read path from an
// exclusive mutating path.
package registry

import (
	"errors"
	"sync"

	"github.com/rawblock/anonyengine/internal/checker"
	"github.com/rawblock/anonyengine/internal/lattice"
	"github.com/rawblock/anonyengine/internal/output"
)

// ErrBufferLocked is returned by Output for a fork=true request, or a
// fork=false request for a different node, while the registry is held
// locked by an in-progress optimization, and by Lock when already locked.
var ErrBufferLocked = errors.New("registry: output buffer is locked by an in-progress optimization")

// ErrNotLocked is returned by Replace/Rollback/Unlock when called without a
// matching Lock.
var ErrNotLocked = errors.New("registry: registry is not locked")

// ErrInvalidArgument is returned for nil node arguments.
var ErrInvalidArgument = errors.New("registry: invalid argument")

// ResultRegistry is the reference implementation. At most one node's output
// is cached at a time; Lock grants a caller (the optimizer) exclusive
// control to refine and swap it, with Rollback restoring the pre-lock state
// if refinement fails partway through.
type ResultRegistry struct {
	mu sync.RWMutex

	locked bool
	node   *lattice.Transformation
	handle *output.DataHandleOutput

	// preLock snapshots (node, handle) at the moment Lock succeeded, so
	// Rollback can restore them even after Replace has overwritten the
	// live fields.
	preLockNode   *lattice.Transformation
	preLockHandle *output.DataHandleOutput
}

// New builds an empty registry.
func New() *ResultRegistry {
	return &ResultRegistry{}
}

// Output returns the DataHandleOutput for node, applying nc if it is not
// already cached. fork requests an independent handle that bypasses the
// cache — it neither reads nor writes the registry's current slot, so a
// caller can probe a node's output without disturbing the cached one.
//
// When fork is false:
//   - a request for the currently-cached node's output is served from cache
//     only when that handle is not itself the product of a local-recoding
//     optimization: an optimized handle is released and node is re-applied
//     fresh, so a caller asking for "the output of node" after it has been
//     locally recoded sees the un-optimized transformation again, not the
//     stale optimized view;
//   - a request for any other node while locked fails with ErrBufferLocked;
//   - a request for any other node while unlocked applies nc, replaces the
//     cache, and returns the fresh handle.
//
// fork=true also fails with ErrBufferLocked while the registry is locked —
// a fork is read-only with respect to the cache, but it must not be able to
// observe a buffer an in-progress optimization is in the middle of
// rewriting.
func (r *ResultRegistry) Output(node *lattice.Transformation, nc checker.NodeChecker, fork bool) (*output.DataHandleOutput, error) {
	if node == nil {
		return nil, ErrInvalidArgument
	}

	if fork {
		r.mu.RLock()
		locked := r.locked
		r.mu.RUnlock()
		if locked {
			return nil, ErrBufferLocked
		}
		return r.applyNode(node, nc)
	}

	r.mu.RLock()
	sameNode := r.node != nil && r.node.ID() == node.ID()
	var cached *output.DataHandleOutput
	if sameNode {
		cached = r.handle
	}
	locked := r.locked
	r.mu.RUnlock()

	switch {
	case cached != nil && !cached.Optimized():
		return cached, nil
	case cached != nil && cached.Optimized():
		r.mu.Lock()
		if r.handle == cached {
			r.handle = nil
			if !r.locked {
				r.node = nil
			}
		}
		r.mu.Unlock()
	case !sameNode && locked:
		return nil, ErrBufferLocked
	}

	handle, err := r.applyNode(node, nc)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locked && (r.node == nil || r.node.ID() != node.ID()) {
		// Lost a race with a concurrent Lock on a different node; the
		// caller must retry.
		return nil, ErrBufferLocked
	}
	r.node = node
	r.handle = handle
	return handle, nil
}

// applyNode runs nc against node, resets nc's application cache, and
// re-estimates the owning lattice's global information-loss bounds unless
// node was already checked with its score pinned to a point value (a
// re-application that cannot have changed anything the bounds estimator
// would care about).
func (r *ResultRegistry) applyNode(node *lattice.Transformation, nc checker.NodeChecker) (*output.DataHandleOutput, error) {
	alreadyPinned := node.HasProperty(lattice.PropertyChecked) &&
		node.HighestScore() != nil && node.LowestScore() != nil &&
		node.HighestScore().CompareTo(node.LowestScore()) == 0

	td, err := nc.Apply(node)
	if err != nil {
		return nil, err
	}
	nc.Reset()
	if !alreadyPinned {
		node.Space().EstimateBounds()
	}
	return output.NewDataHandleOutput(output.NewOutputBuffer(td.Generalized, td.Microaggregated)), nil
}

// Lock grants the caller exclusive control over the registry's current slot
// for node, snapshotting the pre-lock state for a possible Rollback. Lock
// fails with ErrBufferLocked if another caller already holds the lock.
func (r *ResultRegistry) Lock(node *lattice.Transformation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locked {
		return ErrBufferLocked
	}
	r.locked = true
	r.preLockNode = r.node
	r.preLockHandle = r.handle
	r.node = node
	return nil
}

// Replace swaps in a refined handle while the lock is held. The caller is
// responsible for confirming replacement's provenance (e.g. via
// DataHandleOutput.IsInputBufferOf) before calling Replace.
func (r *ResultRegistry) Replace(replacement *output.DataHandleOutput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.locked {
		return ErrNotLocked
	}
	r.handle = replacement
	return nil
}

// Rollback restores the state captured at the matching Lock call, discarding
// any Replace calls made since — the mechanism behind the "rollback signal"
// acceptance scenario: a failed or aborted optimization must never leave
// the registry pointing at a partially-refined buffer.
func (r *ResultRegistry) Rollback() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.locked {
		return ErrNotLocked
	}
	r.node = r.preLockNode
	r.handle = r.preLockHandle
	r.preLockNode = nil
	r.preLockHandle = nil
	r.locked = false
	return nil
}

// Unlock releases the lock, keeping whatever handle is currently installed
// (the normal, successful-optimization exit path).
func (r *ResultRegistry) Unlock() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.locked {
		return ErrNotLocked
	}
	r.preLockNode = nil
	r.preLockHandle = nil
	r.locked = false
	return nil
}

func (r *ResultRegistry) IsLocked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locked
}

// Current returns the registry's cached handle and whether one is present.
func (r *ResultRegistry) Current() (*output.DataHandleOutput, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handle, r.handle != nil
}
