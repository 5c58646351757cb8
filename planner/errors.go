package planner

import "github.com/pkg/errors"

// Fatal pipeline errors. The original firmware parked on a breakpoint at
// these; here they escalate through machine.Panic and end the cycle.
var (
	// ErrNegativeSectionLength means a head/body/tail length went negative
	// during planning, which breaks the length-conservation invariant.
	ErrNegativeSectionLength = errors.New("section length went negative")

	// ErrGroupExtendInTail means a group extension arrived after the running
	// group already entered its tail; the move cannot be stretched once it
	// is decelerating.
	ErrGroupExtendInTail = errors.New("group extended while running group is in tail")

	// ErrBodyShrunkPastExecuted means an extension's recomputed tail would
	// eat into body length that has already been handed to the steppers.
	ErrBodyShrunkPastExecuted = errors.New("tail would shrink body below executed length")

	// ErrNegativeSegmentVelocity means the forward-difference iteration
	// produced a velocity below zero.
	ErrNegativeSegmentVelocity = errors.New("segment velocity went negative")

	// ErrAllBodyTooShort means a move consisted only of a body that is
	// shorter than the minimum segment time and has no head or tail to
	// absorb it.
	ErrAllBodyTooShort = errors.New("all-body move shorter than minimum segment time")

	// ErrBufferNotPrepped means the executor was handed a buffer that has
	// not finished preparation.
	ErrBufferNotPrepped = errors.New("exec called on a buffer that is not prepped")

	// ErrInternal covers states the dispatcher can never legally reach.
	ErrInternal = errors.New("internal motion pipeline error")

	// ErrExitAboveCruise means a planned block violated the velocity
	// ordering invariant entry <= cruise >= exit.
	ErrExitAboveCruise = errors.New("exit velocity exceeds cruise velocity")

	// ErrQueueFull is returned when appending to a full buffer ring.
	ErrQueueFull = errors.New("planner queue is full")

	// ErrZeroLengthMove is reported (not fatal) when a zero-length move
	// reaches the executor.
	ErrZeroLengthMove = errors.New("zero length move in executor")
)
