package modules

import "github.com/uplo-tech/errors"

// Client-visible error kinds (spec §7). Foreground request handlers surface
// exactly one of these per failure class; they never leak peer identities or
// internal vector clocks to the caller.
var (
	// ErrNotFound means metadata has no record of the requested entity.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable means metadata knows about the entity but every holder
	// is currently unreachable. Retriable.
	ErrUnavailable = errors.New("unavailable")

	// ErrNoCapacity means no active storage node could be found to accept a
	// write.
	ErrNoCapacity = errors.New("no capacity")

	// ErrChecksumMismatch means a chunk write was rejected because the
	// supplied bytes did not hash to the declared checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrConflict means a chunk-id is already stored under different bytes.
	// Per spec §5, overwriting a chunk-id with different bytes is a
	// protocol error and must be rejected.
	ErrConflict = errors.New("chunk exists with different content")

	// ErrNameTaken means the owner already has a live file under that name
	// on this node, evaluated without consulting remote state (spec §3).
	ErrNameTaken = errors.New("file name already in use")

	// ErrQueueFull means a backpressure queue (per-SN inflight writes,
	// global inflight repairs) was at capacity (spec §5).
	ErrQueueFull = errors.New("server busy, try again")

	// ErrInternal is returned for local-store transaction failures and
	// other conditions that must not leak detail to the client (spec §7).
	ErrInternal = errors.New("internal error")
)
