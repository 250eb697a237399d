package tensor

import "fmt"

// Distribution describes how a global shape is divided into a grid of
// partitions with per-dimension halo (overlap) regions shared with
// neighboring partitions.
//
// A Distribution is an immutable value once constructed and may be shared,
// by value or by reference, across every Tensor using the same partitioning
// scheme. The local shapes it derives are never stored: they are pure
// functions of (global shape, grid coordinate).
//
// Remainder policy: when a global extent does not divide evenly by the
// partition count, the first `global % parts` partitions along that
// dimension receive one extra element. GlobalIndexBase uses the same policy,
// so bases and local shapes are always consistent.
type Distribution struct {
	grid Shape
	head Shape
	tail Shape
}

// MakeOverlappedDistribution constructs a Distribution over the given
// partition grid, with headOverlap and tailOverlap extra elements shared
// with the neighbor on each side of each dimension.
//
// Overlaps must be non-negative and match the grid's rank. Satisfiability
// against a concrete global shape (head+tail must fit within the local
// extent) is checked by LocalRealShape, since the global shape is not known
// here.
func MakeOverlappedDistribution(grid Shape, headOverlap, tailOverlap Shape) (Distribution, error) {
	if err := grid.Validate(); err != nil {
		return Distribution{}, fmt.Errorf("invalid partition grid: %w", err)
	}
	if len(headOverlap) != len(grid) || len(tailOverlap) != len(grid) {
		return Distribution{}, fmt.Errorf("%w: grid rank %d, head overlap rank %d, tail overlap rank %d",
			ErrDimensionMismatch, len(grid), len(headOverlap), len(tailOverlap))
	}
	for d := range grid {
		if headOverlap[d] < 0 || tailOverlap[d] < 0 {
			return Distribution{}, fmt.Errorf("%w: negative overlap (%d, %d) at dimension %d",
				ErrInvalidOverlap, headOverlap[d], tailOverlap[d], d)
		}
	}
	return Distribution{
		grid: grid.Clone(),
		head: headOverlap.Clone(),
		tail: tailOverlap.Clone(),
	}, nil
}

// MakeSymmetricDistribution constructs a Distribution whose head and tail
// overlaps are the same on both sides of every dimension.
func MakeSymmetricDistribution(grid Shape, overlap Shape) (Distribution, error) {
	return MakeOverlappedDistribution(grid, overlap, overlap)
}

// GridShape returns the partition grid (number of partitions per dimension).
func (d Distribution) GridShape() Shape {
	return d.grid.Clone()
}

// Rank returns the dimensionality of the partition grid.
func (d Distribution) Rank() int {
	return len(d.grid)
}

// NumPartitions returns the total number of partitions, the product of the
// grid extents. A bound process group must have exactly this many ranks.
func (d Distribution) NumPartitions() int {
	return d.grid.NumElements()
}

// HeadOverlap returns the configured head-side overlap of a dimension.
func (d Distribution) HeadOverlap(dim int) int {
	return d.head[dim]
}

// TailOverlap returns the configured tail-side overlap of a dimension.
func (d Distribution) TailOverlap(dim int) int {
	return d.tail[dim]
}

// EffectiveHeadOverlap returns the head overlap of a dimension as seen by
// the partition at the given grid index: zero at the global head boundary,
// where there is no neighbor to share a halo with.
func (d Distribution) EffectiveHeadOverlap(dim, gridIndex int) int {
	if gridIndex == 0 {
		return 0
	}
	return d.head[dim]
}

// EffectiveTailOverlap returns the tail overlap of a dimension as seen by
// the partition at the given grid index: zero at the global tail boundary.
func (d Distribution) EffectiveTailOverlap(dim, gridIndex int) int {
	if gridIndex == d.grid[dim]-1 {
		return 0
	}
	return d.tail[dim]
}

// localExtent partitions a global extent among parts partitions, giving the
// extent owned by partition i. The first rem = global%parts partitions get
// one extra element.
func localExtent(global, parts, i int) int {
	extent := global / parts
	if i < global%parts {
		extent++
	}
	return extent
}

// localBase returns the global coordinate where partition i's extent starts:
// the prefix sum of all preceding local extents, in closed form.
func localBase(global, parts, i int) int {
	base := i * (global / parts)
	if rem := global % parts; i < rem {
		base += i
	} else {
		base += rem
	}
	return base
}

// LocalShape returns the non-halo shape of the partition at coord for the
// given global shape. The sum of LocalShape extents over all grid indices of
// a dimension is exactly the global extent: no gaps, no double ownership.
func (d Distribution) LocalShape(global Shape, coord Index) (Shape, error) {
	if err := d.checkCoord(global, coord); err != nil {
		return nil, err
	}
	local := make(Shape, len(global))
	for dim := range global {
		local[dim] = localExtent(global[dim], d.grid[dim], coord[dim])
	}
	return local, nil
}

// LocalRealShape returns the local shape widened by the effective halo
// padding on each side: local + head + tail per dimension, with overlaps
// clipped to zero at global boundaries. This is the shape a partition's
// buffer is actually sized for.
//
// Returns ErrInvalidOverlap if the combined halo of any dimension exceeds
// that dimension's local extent, which would make neighboring partitions
// overlap themselves.
func (d Distribution) LocalRealShape(global Shape, coord Index) (Shape, error) {
	local, err := d.LocalShape(global, coord)
	if err != nil {
		return nil, err
	}
	real := make(Shape, len(local))
	for dim := range local {
		if d.head[dim]+d.tail[dim] > local[dim] {
			return nil, fmt.Errorf("%w: halo %d+%d exceeds local extent %d at dimension %d",
				ErrInvalidOverlap, d.head[dim], d.tail[dim], local[dim], dim)
		}
		real[dim] = local[dim] +
			d.EffectiveHeadOverlap(dim, coord[dim]) +
			d.EffectiveTailOverlap(dim, coord[dim])
	}
	return real, nil
}

// GlobalIndexBase returns the global coordinate of the partition's first
// non-halo element: per dimension, the sum of the local extents of all
// preceding partitions.
func (d Distribution) GlobalIndexBase(global Shape, coord Index) (Index, error) {
	if err := d.checkCoord(global, coord); err != nil {
		return nil, err
	}
	base := make(Index, len(global))
	for dim := range global {
		base[dim] = localBase(global[dim], d.grid[dim], coord[dim])
	}
	return base, nil
}

func (d Distribution) checkCoord(global Shape, coord Index) error {
	if len(global) != len(d.grid) {
		return fmt.Errorf("%w: global shape rank %d vs grid rank %d",
			ErrDimensionMismatch, len(global), len(d.grid))
	}
	if len(coord) != len(d.grid) {
		return fmt.Errorf("%w: grid coordinate rank %d vs grid rank %d",
			ErrDimensionMismatch, len(coord), len(d.grid))
	}
	for dim := range coord {
		if coord[dim] < 0 || coord[dim] >= d.grid[dim] {
			return fmt.Errorf("%w: grid coordinate %d at dimension %d (grid extent %d)",
				ErrBoundsViolation, coord[dim], dim, d.grid[dim])
		}
	}
	return nil
}

// String pretty-prints the distribution.
func (d Distribution) String() string {
	return fmt.Sprintf("Distribution{grid: %v, head: %v, tail: %v}", d.grid, d.head, d.tail)
}
