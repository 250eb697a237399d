package tensor

import "fmt"

// HaloSide selects one of the two halo regions of a dimension.
type HaloSide int

// Halo sides of a dimension.
const (
	HaloHead HaloSide = iota
	HaloTail
)

// String returns a human-readable side name.
func (s HaloSide) String() string {
	if s == HaloHead {
		return "head"
	}
	return "tail"
}

// ByteRange is a contiguous span of a tensor's buffer, in bytes. Halo
// regions are exposed as byte ranges so that an exchange collaborator can
// move them with Allocator.Copy without re-deriving the index arithmetic.
type ByteRange struct {
	Offset int
	Length int
}

// ClearHalo zeroes exactly the halo region of the given dimension: the head
// range [0, headHalo) and the tail range [localShape[dim]+headHalo,
// localRealShape[dim]), iterated over the full local real extent of every
// other dimension. The non-halo interior and the halos of other dimensions
// are left untouched.
//
// At global boundaries the corresponding side has no halo and is silently
// skipped; that clipping is intentional, not an error. Requires an allocated
// or viewing tensor.
func (t *Tensor[T, A]) ClearHalo(dim int) error {
	if t.state == stateUnallocated {
		return ErrNotAllocated
	}
	if dim < 0 || dim >= len(t.localReal) {
		return fmt.Errorf("%w: dimension %d of rank-%d tensor", ErrBoundsViolation, dim, len(t.localReal))
	}
	for _, side := range []HaloSide{HaloHead, HaloTail} {
		for _, r := range t.haloRegions(dim, side) {
			if err := t.alloc.Zero(t.buf, r.Offset, r.Length); err != nil {
				return err
			}
		}
	}
	return nil
}

// HaloRegion returns the byte ranges of one halo region of a dimension
// within the tensor's pitched buffer, ordered by offset. Empty at a global
// boundary (the side has no neighbor) and for zero-width overlaps. Requires
// an allocated or viewing tensor, since the ranges depend on the reported
// pitch.
func (t *Tensor[T, A]) HaloRegion(dim int, side HaloSide) ([]ByteRange, error) {
	if t.state == stateUnallocated {
		return nil, ErrNotAllocated
	}
	if dim < 0 || dim >= len(t.localReal) {
		return nil, fmt.Errorf("%w: dimension %d of rank-%d tensor", ErrBoundsViolation, dim, len(t.localReal))
	}
	return t.haloRegions(dim, side), nil
}

// HaloPeer returns the rank owning the neighboring partition on the given
// side of a dimension, and whether such a neighbor exists. Partitions at a
// global boundary have no peer on that side.
func (t *Tensor[T, A]) HaloPeer(dim int, side HaloSide) (int, bool) {
	peer := t.coord.Clone()
	if side == HaloHead {
		peer[dim]--
	} else {
		peer[dim]++
	}
	grid := t.dist.grid
	if peer[dim] < 0 || peer[dim] >= grid[dim] {
		return -1, false
	}
	rank, err := RankOf(peer, grid)
	if err != nil {
		return -1, false
	}
	return rank, true
}

// haloRegions enumerates the byte ranges of one halo region.
//
// The target dimension's index range is restricted to [0, head) or
// [local+head, localReal) while all perpendicular dimensions span their full
// local real extent. For dimension 0 that is a short span in every row; for
// higher dimensions whole runs of consecutive rows fall inside the halo, one
// run per combination of the dimensions above it.
func (t *Tensor[T, A]) haloRegions(dim int, side HaloSide) []ByteRange {
	head := t.HeadHalo(dim)
	var start, width int
	if side == HaloHead {
		start, width = 0, head
	} else {
		start, width = t.local[dim]+head, t.TailHalo(dim)
	}
	if width == 0 {
		return nil
	}
	pitchBytes := t.pitch * t.elemSize
	rows := t.rows()

	if dim == 0 {
		// A short range at the same position in every row.
		regions := make([]ByteRange, 0, rows)
		for r := 0; r < rows; r++ {
			regions = append(regions, ByteRange{
				Offset: r*pitchBytes + start*t.elemSize,
				Length: width * t.elemSize,
			})
		}
		return regions
	}

	// Rows are numbered by the dimensions above 0; rows whose dim-coordinate
	// falls in the halo range form one contiguous run of `width*inner` rows
	// per combination of the dimensions above dim.
	inner := 1
	for _, extent := range t.localReal[1:dim] {
		inner *= extent
	}
	blockRows := inner * t.localReal[dim]
	outer := rows / blockRows

	regions := make([]ByteRange, 0, outer)
	for o := 0; o < outer; o++ {
		firstRow := o*blockRows + start*inner
		regions = append(regions, ByteRange{
			Offset: firstRow * pitchBytes,
			Length: width * inner * pitchBytes,
		})
	}
	return regions
}
