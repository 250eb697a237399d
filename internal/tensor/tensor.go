package tensor

import (
	"fmt"
	"unsafe"

	"k8s.io/klog/v2"
)

// tensorState tracks the Tensor's buffer lifecycle.
type tensorState int

const (
	stateUnallocated tensorState = iota
	stateAllocated
	stateViewing
)

// Tensor is one partition's slab of a globally distributed array, with type
// T and allocator capability A.
//
// A Tensor is constructed from a global shape, the caller's Locale and a
// Distribution; it derives its local (non-halo) shape, its local real shape
// (local + halo padding) and the global coordinate of its first non-halo
// element. The buffer is materialized separately by Allocate, or bound to
// caller-owned memory by View.
//
// Memory layout is dimension-0-fastest with a pitch: consecutive "rows"
// (full extents of dimension 0) are Pitch() elements apart, where the pitch
// is reported by the allocator and may exceed LocalRealShape()[0] for
// alignment.
//
// A Tensor is not safe for concurrent use without external synchronization.
//
// Example:
//
//	loc := tensor.NewLocale(group.Single{})
//	dist, _ := tensor.MakeSymmetricDistribution(tensor.Shape{1, 1}, tensor.Shape{1, 0})
//	t, _ := tensor.New[float32](tensor.Shape{32, 16}, loc, dist, tensor.HostAllocator{})
//	if err := t.Allocate(); err != nil { ... }
//	defer t.Free()
type Tensor[T DType, A Allocator] struct {
	alloc  A
	global Shape
	dist   Distribution
	locale Locale

	coord     Index // This rank's position in the partition grid.
	local     Shape // Owned extents, no halo.
	localReal Shape // Owned extents plus effective halo padding.
	base      Index // Global coordinate of local element (0, ..., 0).

	elemSize int
	pitch    int // Elements between consecutive rows; >= localReal[0].
	buf      Buffer
	state    tensorState
}

// New constructs an unallocated Tensor for the caller's partition of the
// given global shape.
//
// The returned tensor has its shapes, pitch candidate and global index base
// computed but owns no memory yet. Errors: ErrRankMismatch if the locale's
// group size does not match the distribution's grid, ErrInvalidOverlap if
// the halo does not fit the local extent, ErrDimensionMismatch on rank
// disagreements.
func New[T DType, A Allocator](global Shape, loc Locale, dist Distribution, alloc A) (*Tensor[T, A], error) {
	if err := global.Validate(); err != nil {
		return nil, fmt.Errorf("invalid global shape: %w", err)
	}
	coord, err := loc.GridCoord(dist.GridShape())
	if err != nil {
		return nil, err
	}
	local, err := dist.LocalShape(global, coord)
	if err != nil {
		return nil, err
	}
	localReal, err := dist.LocalRealShape(global, coord)
	if err != nil {
		return nil, err
	}
	base, err := dist.GlobalIndexBase(global, coord)
	if err != nil {
		return nil, err
	}

	var dummy T
	return &Tensor[T, A]{
		alloc:     alloc,
		global:    global.Clone(),
		dist:      dist,
		locale:    loc,
		coord:     coord,
		local:     local,
		localReal: localReal,
		base:      base,
		elemSize:  inferDataType(dummy).Size(),
		pitch:     localReal[0], // Candidate; the allocator has the final word.
	}, nil
}

// Allocate materializes the tensor's buffer: a pitched allocation of the
// local real shape in the allocator's memory space. The pitch reported by
// the allocator replaces the dense candidate.
//
// Fails with ErrAlreadyAllocated or ErrAlreadyViewing on state violations
// and ErrAllocationFailure (wrapping the allocator's error) when the request
// cannot be satisfied; the tensor is unchanged on failure.
func (t *Tensor[T, A]) Allocate() error {
	switch t.state {
	case stateAllocated:
		return ErrAlreadyAllocated
	case stateViewing:
		return ErrAlreadyViewing
	}
	width := t.localReal[0] * t.elemSize
	height := t.rows()
	buf, pitchBytes, err := t.alloc.Allocate(width, height)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAllocationFailure, err)
	}
	if pitchBytes%t.elemSize != 0 || pitchBytes < width {
		buf.Release()
		return fmt.Errorf("%w: allocator reported pitch %d bytes for width %d, element size %d",
			ErrAllocationFailure, pitchBytes, width, t.elemSize)
	}
	t.buf = buf
	t.pitch = pitchBytes / t.elemSize
	t.state = stateAllocated
	klog.V(1).Infof("rank %d: allocated %v (real %v, pitch %d) on %s",
		t.locale.Rank(), t.local, t.localReal, t.pitch, t.alloc.Device())
	return nil
}

// View binds the tensor to caller-owned memory without taking ownership.
// pitchElems is the row stride of the external buffer, which must be at
// least the local real extent of dimension 0; the buffer must be large
// enough for the pitched local real shape. The tensor never releases a
// viewed buffer, and a subsequent Allocate fails with ErrAlreadyViewing.
func (t *Tensor[T, A]) View(buf Buffer, pitchElems int) error {
	switch t.state {
	case stateAllocated:
		return ErrAlreadyAllocated
	case stateViewing:
		return ErrAlreadyViewing
	}
	if pitchElems < t.localReal[0] {
		return fmt.Errorf("%w: view pitch %d is smaller than local real extent %d",
			ErrBoundsViolation, pitchElems, t.localReal[0])
	}
	need := pitchElems * t.elemSize * t.rows()
	if buf.ByteSize() < need {
		return fmt.Errorf("%w: view buffer has %d bytes, pitched local real shape needs %d",
			ErrBoundsViolation, buf.ByteSize(), need)
	}
	t.buf = buf
	t.pitch = pitchElems
	t.state = stateViewing
	return nil
}

// Free releases the tensor's buffer and returns it to the unallocated state,
// after which it may be allocated again. A viewed buffer is detached but
// never released: the external owner keeps it. Free on an unallocated tensor
// is a no-op.
func (t *Tensor[T, A]) Free() {
	if t.state == stateAllocated {
		t.buf.Release()
	}
	t.buf = nil
	t.pitch = t.localReal[0]
	t.state = stateUnallocated
}

// Zero fills the entire local real buffer, halo and pitch padding included,
// with zero bytes. Requires an allocated or viewing tensor.
func (t *Tensor[T, A]) Zero() error {
	if t.state == stateUnallocated {
		return ErrNotAllocated
	}
	return t.alloc.Zero(t.buf, 0, t.pitch*t.elemSize*t.rows())
}

// Buffer returns the underlying buffer handle, or nil if the tensor is
// unallocated.
func (t *Tensor[T, A]) Buffer() Buffer {
	return t.buf
}

// Allocator returns the tensor's allocator capability.
func (t *Tensor[T, A]) Allocator() A {
	return t.alloc
}

// Data returns a typed slice over the tensor's pitched local real buffer.
// Returns nil if the tensor is unallocated; panics if the buffer is not
// host-visible (device-resident data is reached through Allocator.Copy).
func (t *Tensor[T, A]) Data() []T {
	if t.state == stateUnallocated {
		return nil
	}
	hb, ok := t.buf.(HostBuffer)
	if !ok {
		panic(fmt.Sprintf("tensor buffer on %s is not host-visible", t.alloc.Device()))
	}
	data := hb.Bytes()
	n := t.pitch * t.rows()
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation; length derived from the pitched shape.
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n)
}

// GlobalShape returns the global shape this tensor is a partition of.
func (t *Tensor[T, A]) GlobalShape() Shape { return t.global.Clone() }

// Distribution returns the partitioning scheme.
func (t *Tensor[T, A]) Distribution() Distribution { return t.dist }

// Locale returns the process binding.
func (t *Tensor[T, A]) Locale() Locale { return t.locale }

// GridCoord returns this rank's coordinate in the partition grid.
func (t *Tensor[T, A]) GridCoord() Index { return t.coord.Clone() }

// LocalShape returns the partition's owned extents, without halo.
func (t *Tensor[T, A]) LocalShape() Shape { return t.local.Clone() }

// LocalRealShape returns the partition's extents including effective halo
// padding; this is the shape of the materialized buffer.
func (t *Tensor[T, A]) LocalRealShape() Shape { return t.localReal.Clone() }

// Pitch returns the element stride between consecutive rows of the buffer.
// Before allocation it is the dense candidate LocalRealShape()[0]; after
// allocation it is the allocator-reported value.
func (t *Tensor[T, A]) Pitch() int { return t.pitch }

// GlobalIndexBase returns the global coordinate of local element (0, ..., 0)
// excluding halo: operators add it to a local index to recover the global
// index.
func (t *Tensor[T, A]) GlobalIndexBase() Index { return t.base.Clone() }

// LocalOffset returns the linear offset of the partition's first non-halo
// element in the dense global element order. Diagnostic; pairs with
// GlobalIndexBase for global-offset computations.
func (t *Tensor[T, A]) LocalOffset() int {
	off, err := Offset(t.base, t.global, 0)
	if err != nil {
		// base is derived from the distribution and always in range.
		panic(err)
	}
	return off
}

// HeadHalo returns the effective head halo width of a dimension for this
// partition: zero at the global head boundary.
func (t *Tensor[T, A]) HeadHalo(dim int) int {
	return t.dist.EffectiveHeadOverlap(dim, t.coord[dim])
}

// TailHalo returns the effective tail halo width of a dimension for this
// partition: zero at the global tail boundary.
func (t *Tensor[T, A]) TailHalo(dim int) int {
	return t.dist.EffectiveTailOverlap(dim, t.coord[dim])
}

// At returns the element at the given local-real coordinates (halo cells
// addressable). Host-visible buffers only; panics on bounds violations, in
// the style of slice indexing.
func (t *Tensor[T, A]) At(indices ...int) T {
	off, err := Offset(Index(indices), t.localReal, t.pitch)
	if err != nil {
		panic(err)
	}
	return t.Data()[off]
}

// Set stores the element at the given local-real coordinates.
// Host-visible buffers only; panics on bounds violations.
func (t *Tensor[T, A]) Set(value T, indices ...int) {
	off, err := Offset(Index(indices), t.localReal, t.pitch)
	if err != nil {
		panic(err)
	}
	t.Data()[off] = value
}

// rows returns the number of dimension-0 rows in the local real buffer: the
// product of all extents above dimension 0.
func (t *Tensor[T, A]) rows() int {
	n := 1
	for _, dim := range t.localReal[1:] {
		n *= dim
	}
	return n
}

// String returns a human-readable summary of the tensor.
func (t *Tensor[T, A]) String() string {
	var dummy T
	return fmt.Sprintf("Tensor[%s]{global: %v, local: %v, real: %v, base: %v, rank: %d/%d, device: %s}",
		inferDataType(dummy), t.global, t.local, t.localReal, t.base,
		t.locale.Rank(), t.locale.Size(), t.alloc.Device())
}
