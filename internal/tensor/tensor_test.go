package tensor

import (
	"errors"
	"testing"
)

// newTestTensor builds a float32 tensor for one rank of a grid over host
// memory. Alignment > 0 selects the pitched host allocator so tests exercise
// pitch-adjusted offsets.
func newTestTensor(t *testing.T, global, grid, head, tail Shape, rank, alignment int) *Tensor[float32, Allocator] {
	t.Helper()
	dist := mustDistribution(t, grid, head, tail)
	loc := NewLocale(fakeGroup{rank: rank, size: grid.NumElements()})
	var alloc Allocator = HostAllocator{}
	if alignment > 0 {
		alloc = AlignedHostAllocator{Alignment: alignment}
	}
	tsr, err := New[float32](global, loc, dist, alloc)
	if err != nil {
		t.Fatalf("New(global %v, grid %v, rank %d) failed: %v", global, grid, rank, err)
	}
	return tsr
}

func TestTensorLifecycle(t *testing.T) {
	tsr := newTestTensor(t, Shape{8, 4}, Shape{1, 1}, Shape{0, 0}, Shape{0, 0}, 0, 0)

	// Operations requiring allocation fail before the first Allocate.
	if err := tsr.Zero(); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("Zero before allocate: got %v, want ErrNotAllocated", err)
	}
	if err := tsr.ClearHalo(0); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("ClearHalo before allocate: got %v, want ErrNotAllocated", err)
	}
	if tsr.Buffer() != nil || tsr.Data() != nil {
		t.Error("unallocated tensor exposes a buffer")
	}

	if err := tsr.Allocate(); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := tsr.Allocate(); !errors.Is(err, ErrAlreadyAllocated) {
		t.Errorf("second Allocate: got %v, want ErrAlreadyAllocated", err)
	}
	if err := tsr.Zero(); err != nil {
		t.Errorf("Zero failed: %v", err)
	}

	// Free returns the tensor to the unallocated state; it may be reused.
	tsr.Free()
	if err := tsr.Zero(); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("Zero after free: got %v, want ErrNotAllocated", err)
	}
	if err := tsr.Allocate(); err != nil {
		t.Errorf("Allocate after free failed: %v", err)
	}
	tsr.Free()
}

func TestTensorShapesAndPitch(t *testing.T) {
	// Rank 1 of a 2-wide grid along dimension 0, halo (1, 1): interior
	// partition has both halos except at the global boundaries.
	tsr := newTestTensor(t, Shape{8, 6}, Shape{2, 1}, Shape{1, 0}, Shape{1, 0}, 1, 64)

	assertEqualShape(t, Shape{4, 6}, tsr.LocalShape(), "local shape")
	// coord (1, 0): head halo present, tail clipped at global boundary.
	assertEqualShape(t, Shape{5, 6}, tsr.LocalRealShape(), "local real shape")
	assertEqualIndex(t, Index{4, 0}, tsr.GlobalIndexBase(), "base")

	if err := tsr.Allocate(); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	defer tsr.Free()

	// 64-byte alignment over 5 float32 (20 bytes) rows to a 16-element pitch.
	if got := tsr.Pitch(); got != 16 {
		t.Errorf("Pitch() = %d, want 16", got)
	}
	if got := len(tsr.Data()); got != 16*6 {
		t.Errorf("len(Data()) = %d, want %d", got, 16*6)
	}
}

func TestTensorView(t *testing.T) {
	tsr := newTestTensor(t, Shape{4, 4}, Shape{1, 1}, Shape{0, 0}, Shape{0, 0}, 0, 0)

	external := &hostBuffer{data: make([]byte, 4*4*4)}
	if err := tsr.View(external, 4); err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if err := tsr.Allocate(); !errors.Is(err, ErrAlreadyViewing) {
		t.Errorf("Allocate while viewing: got %v, want ErrAlreadyViewing", err)
	}

	tsr.Set(7, 2, 3)
	if got := tsr.At(2, 3); got != 7 {
		t.Errorf("At(2,3) = %v, want 7", got)
	}

	// Free never releases a viewed buffer.
	tsr.Free()
	if external.Bytes() == nil {
		t.Error("Free released externally owned memory")
	}

	// Undersized buffers are rejected.
	small := &hostBuffer{data: make([]byte, 8)}
	if err := tsr.View(small, 4); !errors.Is(err, ErrBoundsViolation) {
		t.Errorf("undersized view: got %v, want ErrBoundsViolation", err)
	}
}

// Round-trip property: writing f(globalIndex) at every non-halo element
// through base + local index, then reading back through pitched offsets,
// reproduces f exactly on every rank, including non-divisible extents and
// a pitch that exceeds the dense row width. Together the ranks cover every
// global element exactly once.
func TestTensorGlobalRoundTrip(t *testing.T) {
	global := Shape{7, 5, 3} // Awkward extents: nothing divides evenly.
	grid := Shape{2, 2, 1}
	head := Shape{1, 1, 0}
	tail := Shape{1, 1, 0}

	f := func(g Index) float32 {
		return float32(g[0]*100 + g[1]*10 + g[2] + 1)
	}

	seen := make(map[int]int) // global linear offset -> writes
	for rank := 0; rank < grid.NumElements(); rank++ {
		tsr := newTestTensor(t, global, grid, head, tail, rank, 32)
		if err := tsr.Allocate(); err != nil {
			t.Fatalf("rank %d: Allocate failed: %v", rank, err)
		}
		if err := tsr.Zero(); err != nil {
			t.Fatal(err)
		}

		local := tsr.LocalShape()
		base := tsr.GlobalIndexBase()
		headHalo := Index{tsr.HeadHalo(0), tsr.HeadHalo(1), tsr.HeadHalo(2)}

		forEachIndex(local, func(li Index) {
			gi, err := base.Add(li)
			if err != nil {
				t.Fatal(err)
			}
			real, err := li.Add(headHalo)
			if err != nil {
				t.Fatal(err)
			}
			tsr.Set(f(gi), real...)

			goff, err := Offset(gi, global, 0)
			if err != nil {
				t.Fatal(err)
			}
			seen[goff]++
		})

		// Read back through raw pitched offsets rather than At.
		data := tsr.Data()
		forEachIndex(local, func(li Index) {
			gi, _ := base.Add(li)
			real, _ := li.Add(headHalo)
			off, err := Offset(Index(real), tsr.LocalRealShape(), tsr.Pitch())
			if err != nil {
				t.Fatal(err)
			}
			if data[off] != f(gi) {
				t.Fatalf("rank %d: element %v (global %v) = %v, want %v",
					rank, real, gi, data[off], f(gi))
			}
		})
		tsr.Free()
	}

	if len(seen) != global.NumElements() {
		t.Errorf("ranks covered %d global elements, want %d", len(seen), global.NumElements())
	}
	for off, writes := range seen {
		if writes != 1 {
			t.Errorf("global offset %d written %d times, want exactly once", off, writes)
		}
	}
}

// forEachIndex walks every index of shape with dimension 0 fastest.
func forEachIndex(shape Shape, fn func(Index)) {
	idx := make(Index, len(shape))
	n := shape.NumElements()
	for i := 0; i < n; i++ {
		fn(idx)
		for d := 0; d < len(shape); d++ {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
}

// fillDistinct writes a distinct nonzero value to every local-real cell,
// derived from the cell's coordinates.
func fillDistinct(t *testing.T, tsr *Tensor[float32, Allocator]) func(Index) float32 {
	t.Helper()
	value := func(idx Index) float32 {
		v := float32(1)
		for d, c := range idx {
			v += float32(c * (d*1000 + 7))
		}
		return v
	}
	forEachIndex(tsr.LocalRealShape(), func(idx Index) {
		tsr.Set(value(idx), idx...)
	})
	return value
}

// inHalo reports whether a local-real coordinate lies in the halo of dim.
func inHalo(tsr *Tensor[float32, Allocator], idx Index, dim int) bool {
	head := tsr.HeadHalo(dim)
	local := tsr.LocalShape()
	return idx[dim] < head || idx[dim] >= local[dim]+head
}

// ClearHalo(d) must zero exactly the halo cells of dimension d and leave
// every other cell untouched, interior and halos of other dimensions alike.
func TestClearHaloExact3D(t *testing.T) {
	global := Shape{8, 6, 4}
	grid := Shape{2, 2, 1}
	head := Shape{1, 1, 0}
	tail := Shape{1, 1, 0}

	for rank := 0; rank < grid.NumElements(); rank++ {
		for dim := 0; dim < 3; dim++ {
			tsr := newTestTensor(t, global, grid, head, tail, rank, 32)
			if err := tsr.Allocate(); err != nil {
				t.Fatal(err)
			}
			value := fillDistinct(t, tsr)

			if err := tsr.ClearHalo(dim); err != nil {
				t.Fatalf("rank %d: ClearHalo(%d) failed: %v", rank, dim, err)
			}

			forEachIndex(tsr.LocalRealShape(), func(idx Index) {
				got := tsr.At(idx...)
				if inHalo(tsr, idx, dim) {
					if got != 0 {
						t.Fatalf("rank %d dim %d: halo cell %v = %v, want 0", rank, dim, idx, got)
					}
				} else if got != value(idx) {
					t.Fatalf("rank %d dim %d: cell %v = %v, want %v (untouched)",
						rank, dim, idx, got, value(idx))
				}
			})
			tsr.Free()
		}
	}
}

func TestClearHaloExact4D(t *testing.T) {
	global := Shape{6, 6, 4, 4}
	grid := Shape{2, 1, 2, 1}
	head := Shape{1, 0, 1, 0}
	tail := Shape{1, 0, 1, 0}

	for rank := 0; rank < grid.NumElements(); rank++ {
		for dim := 0; dim < 4; dim++ {
			tsr := newTestTensor(t, global, grid, head, tail, rank, 0)
			if err := tsr.Allocate(); err != nil {
				t.Fatal(err)
			}
			value := fillDistinct(t, tsr)

			if err := tsr.ClearHalo(dim); err != nil {
				t.Fatalf("rank %d: ClearHalo(%d) failed: %v", rank, dim, err)
			}

			forEachIndex(tsr.LocalRealShape(), func(idx Index) {
				got := tsr.At(idx...)
				if inHalo(tsr, idx, dim) {
					if got != 0 {
						t.Fatalf("rank %d dim %d: halo cell %v = %v, want 0", rank, dim, idx, got)
					}
				} else if got != value(idx) {
					t.Fatalf("rank %d dim %d: cell %v = %v, want %v (untouched)",
						rank, dim, idx, got, value(idx))
				}
			})
			tsr.Free()
		}
	}
}

// Concrete scenario from the distributed convolution use case: global shape
// (32, 31, 4), grid (2, 2, 1), halo (1, 1, 0) on both sides. After
// ClearHalo(0), cells with local-real dimension-0 index in [0, head) or
// [localShape[0]+head, localRealShape[0]) are zero; all else unchanged.
func TestClearHaloConvolutionScenario(t *testing.T) {
	global := Shape{32, 31, 4}
	grid := Shape{2, 2, 1}
	overlap := Shape{1, 1, 0}

	for rank := 0; rank < 4; rank++ {
		tsr := newTestTensor(t, global, grid, overlap, overlap, rank, 64)
		if err := tsr.Allocate(); err != nil {
			t.Fatal(err)
		}
		value := fillDistinct(t, tsr)

		if err := tsr.ClearHalo(0); err != nil {
			t.Fatal(err)
		}

		head := tsr.HeadHalo(0)
		local := tsr.LocalShape()
		real := tsr.LocalRealShape()
		forEachIndex(real, func(idx Index) {
			inDim0Halo := idx[0] < head || idx[0] >= local[0]+head
			got := tsr.At(idx...)
			if inDim0Halo {
				if got != 0 {
					t.Fatalf("rank %d: cell %v = %v, want 0", rank, idx, got)
				}
			} else if got != value(idx) {
				t.Fatalf("rank %d: cell %v = %v, want %v", rank, idx, got, value(idx))
			}
		})
		tsr.Free()
	}
}

// Concrete scenario: global (2, 2, 2) over a grid matching 8 ranks. Every
// rank owns a single element and its base is its unraveled grid coordinate,
// the binary cube numbering.
func TestBinaryCubeScenario(t *testing.T) {
	global := Shape{2, 2, 2}
	grid := Shape{2, 2, 2}
	zero := Shape{0, 0, 0}

	for rank := 0; rank < 8; rank++ {
		tsr := newTestTensor(t, global, grid, zero, zero, rank, 0)
		assertEqualShape(t, Shape{1, 1, 1}, tsr.LocalShape(), "unit local shape")

		want := Index{rank & 1, (rank >> 1) & 1, (rank >> 2) & 1}
		assertEqualIndex(t, want, tsr.GlobalIndexBase(), "binary cube base")

		off, err := Offset(tsr.GlobalIndexBase(), global, 0)
		if err != nil {
			t.Fatal(err)
		}
		if off != rank {
			t.Errorf("rank %d: global linear offset %d, want rank itself", rank, off)
		}
		if tsr.LocalOffset() != rank {
			t.Errorf("rank %d: LocalOffset() = %d", rank, tsr.LocalOffset())
		}
	}
}

func TestHaloPeer(t *testing.T) {
	// Middle rank of a 3-grid along dimension 0.
	tsr := newTestTensor(t, Shape{9, 4}, Shape{3, 1}, Shape{1, 0}, Shape{1, 0}, 1, 0)

	if peer, ok := tsr.HaloPeer(0, HaloHead); !ok || peer != 0 {
		t.Errorf("head peer = (%d, %v), want (0, true)", peer, ok)
	}
	if peer, ok := tsr.HaloPeer(0, HaloTail); !ok || peer != 2 {
		t.Errorf("tail peer = (%d, %v), want (2, true)", peer, ok)
	}

	// Boundary ranks lack one peer.
	first := newTestTensor(t, Shape{9, 4}, Shape{3, 1}, Shape{1, 0}, Shape{1, 0}, 0, 0)
	if _, ok := first.HaloPeer(0, HaloHead); ok {
		t.Error("first partition reported a head peer")
	}
	last := newTestTensor(t, Shape{9, 4}, Shape{3, 1}, Shape{1, 0}, Shape{1, 0}, 2, 0)
	if _, ok := last.HaloPeer(0, HaloTail); ok {
		t.Error("last partition reported a tail peer")
	}
}

func TestHaloRegionRanges(t *testing.T) {
	// Rank 1 of a 2-grid along dimension 1: head halo of one full row span.
	tsr := newTestTensor(t, Shape{4, 8}, Shape{1, 2}, Shape{0, 1}, Shape{0, 1}, 1, 0)
	if err := tsr.Allocate(); err != nil {
		t.Fatal(err)
	}
	defer tsr.Free()

	regions, err := tsr.HaloRegion(1, HaloHead)
	if err != nil {
		t.Fatal(err)
	}
	// One run of `head * inner` rows at the start of the buffer.
	pitchBytes := tsr.Pitch() * 4
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	if regions[0].Offset != 0 || regions[0].Length != pitchBytes {
		t.Errorf("head region = %+v, want {0, %d}", regions[0], pitchBytes)
	}

	// Tail side is clipped at the global boundary: no regions.
	regions, err = tsr.HaloRegion(1, HaloTail)
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 0 {
		t.Errorf("tail regions at global boundary = %v, want none", regions)
	}
}

func TestNewTensorRankMismatch(t *testing.T) {
	dist := mustDistribution(t, Shape{2, 2}, Shape{0, 0}, Shape{0, 0})
	loc := NewLocale(fakeGroup{rank: 0, size: 3})
	if _, err := New[float32](Shape{8, 8}, loc, dist, HostAllocator{}); !errors.Is(err, ErrRankMismatch) {
		t.Errorf("group size 3 vs 4 partitions: got %v, want ErrRankMismatch", err)
	}
}

func TestNewTensorInvalidOverlap(t *testing.T) {
	// Halo 2+2 over local extent 2.
	dist := mustDistribution(t, Shape{2}, Shape{2}, Shape{2})
	loc := NewLocale(fakeGroup{rank: 0, size: 2})
	if _, err := New[float32](Shape{4}, loc, dist, HostAllocator{}); !errors.Is(err, ErrInvalidOverlap) {
		t.Errorf("oversized halo: got %v, want ErrInvalidOverlap", err)
	}
}
