package domain

import "errors"

// Sentinel errors for core operations
var (
	// ErrNotFound indicates the requested entry or index does not exist
	ErrNotFound = errors.New("entry not found")

	// ErrTransport indicates the upstream archive is unreachable
	ErrTransport = errors.New("upstream archive is unreachable")

	// ErrParse indicates an upstream payload or cache file is malformed
	ErrParse = errors.New("malformed payload")

	// ErrIo indicates a filesystem operation failed. Caches degrade to
	// memory-only serving on write failures, so this surfaces mainly
	// from explicit invalidation.
	ErrIo = errors.New("filesystem operation failed")

	// ErrPeerDead indicates a message was sent to a terminated actor.
	// During normal operation this is a programming error; actors are
	// only terminated at shutdown.
	ErrPeerDead = errors.New("actor inbox is closed")

	// ErrConfig indicates a missing or invalid configuration option
	ErrConfig = errors.New("invalid configuration")
)
