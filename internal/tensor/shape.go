package tensor

import "fmt"

// Shape represents the extents of a tensor, one per dimension.
//
// Dimension 0 is the fastest-varying dimension in memory: a buffer described
// by Shape{w, h, c} stores w contiguous elements per row, h rows per channel.
// This matches the layout convention used throughout the distribution and
// offset arithmetic in this package.
type Shape []int

// NumElements returns the total number of elements in the shape.
// Returns zero if any extent is zero.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that the shape is usable (all extents > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid extent at dimension %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Add returns the element-wise sum of two same-rank shapes.
// Used to widen a local shape by its halo padding.
func (s Shape) Add(other Shape) (Shape, error) {
	if len(s) != len(other) {
		return nil, fmt.Errorf("%w: rank %d vs %d", ErrDimensionMismatch, len(s), len(other))
	}
	result := make(Shape, len(s))
	for i := range s {
		result[i] = s[i] + other[i]
	}
	return result, nil
}

// Sub returns the element-wise difference of two same-rank shapes.
func (s Shape) Sub(other Shape) (Shape, error) {
	if len(s) != len(other) {
		return nil, fmt.Errorf("%w: rank %d vs %d", ErrDimensionMismatch, len(s), len(other))
	}
	result := make(Shape, len(s))
	for i := range s {
		result[i] = s[i] - other[i]
	}
	return result, nil
}

// Index represents a coordinate, one entry per dimension, always interpreted
// relative to some Shape. An Index never owns the Shape it indexes.
type Index []int

// Clone returns a copy of the index.
func (idx Index) Clone() Index {
	clone := make(Index, len(idx))
	copy(clone, idx)
	return clone
}

// Equal checks if two indices are equal.
func (idx Index) Equal(other Index) bool {
	if len(idx) != len(other) {
		return false
	}
	for i := range idx {
		if idx[i] != other[i] {
			return false
		}
	}
	return true
}

// Add returns the element-wise sum of two same-rank indices.
func (idx Index) Add(other Index) (Index, error) {
	if len(idx) != len(other) {
		return nil, fmt.Errorf("%w: rank %d vs %d", ErrDimensionMismatch, len(idx), len(other))
	}
	result := make(Index, len(idx))
	for i := range idx {
		result[i] = idx[i] + other[i]
	}
	return result, nil
}

// Sub returns the element-wise difference of two same-rank indices.
// Subtracting a partition's global index base from a global index yields the
// corresponding local index.
func (idx Index) Sub(other Index) (Index, error) {
	if len(idx) != len(other) {
		return nil, fmt.Errorf("%w: rank %d vs %d", ErrDimensionMismatch, len(idx), len(other))
	}
	result := make(Index, len(idx))
	for i := range idx {
		result[i] = idx[i] - other[i]
	}
	return result, nil
}

// BoundsCheckEnabled controls whether Offset validates index coordinates
// against shape extents. Leave it on; performance builds that have verified
// their index arithmetic may disable it at startup. It must not be toggled
// concurrently with Offset calls.
var BoundsCheckEnabled = true

// Offset returns the linear offset of idx within a buffer described by shape,
// with dimension 0 fastest-varying.
//
// When pitch > 0, the stride contributed by dimension 0 is pitch instead of
// shape[0], accommodating buffers whose rows were padded for alignment;
// strides of all higher dimensions are products of the preceding extents
// (padded only at dimension 0). Pass pitch = 0 for a dense buffer.
func Offset(idx Index, shape Shape, pitch int) (int, error) {
	if len(idx) != len(shape) {
		return 0, fmt.Errorf("%w: index rank %d vs shape rank %d",
			ErrDimensionMismatch, len(idx), len(shape))
	}
	if BoundsCheckEnabled {
		for d := range idx {
			if idx[d] < 0 || idx[d] >= shape[d] {
				return 0, fmt.Errorf("%w: index %d at dimension %d (extent %d)",
					ErrBoundsViolation, idx[d], d, shape[d])
			}
		}
	}
	if len(idx) == 0 {
		return 0, nil
	}
	offset := idx[0]
	stride := shape[0]
	if pitch > 0 {
		stride = pitch
	}
	for d := 1; d < len(idx); d++ {
		offset += idx[d] * stride
		stride *= shape[d]
	}
	return offset, nil
}
