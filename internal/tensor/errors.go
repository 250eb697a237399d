package tensor

import "errors"

// Sentinel errors for the tensor core. All failures at this layer are
// synchronous and non-recoverable: callers are expected to treat them as
// fatal to the current distributed computation. Wrapped causes (if any) are
// attached with fmt.Errorf and %w, so errors.Is works on every return path.
var (
	// ErrDimensionMismatch reports a rank mismatch between an Index and a
	// Shape, or between the operands of an element-wise operation.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrBoundsViolation reports an index coordinate outside its shape extent.
	ErrBoundsViolation = errors.New("index out of bounds")

	// ErrInvalidOverlap reports a halo specification that is negative or does
	// not fit within a partition's local extent.
	ErrInvalidOverlap = errors.New("invalid overlap")

	// ErrRankMismatch reports a process group whose size does not match the
	// number of partitions in a grid.
	ErrRankMismatch = errors.New("process group size does not match partition grid")

	// ErrAllocationFailure reports that the allocator capability could not
	// satisfy a buffer request.
	ErrAllocationFailure = errors.New("allocation failure")

	// ErrAlreadyAllocated reports a second Allocate without an intervening Free.
	ErrAlreadyAllocated = errors.New("tensor already allocated")

	// ErrAlreadyViewing reports an Allocate on a tensor viewing external memory.
	ErrAlreadyViewing = errors.New("tensor is viewing external memory")

	// ErrNotAllocated reports an operation that requires an allocated buffer.
	ErrNotAllocated = errors.New("tensor not allocated")
)
