// Package ops provides reference host operators over distributed tensor
// slabs. They consume only the tensor core's public contract (local shapes,
// pitched buffers and the global index base) and serve as the model for
// device-backed operator implementations.
package ops

import (
	"fmt"

	"github.com/mosaic-ml/mosaic/internal/parallel"
	"github.com/mosaic-ml/mosaic/internal/tensor"
)

// Float constrains operators to floating-point element types.
type Float interface {
	~float32 | ~float64
}

// LeakyReLU computes out = in where in > 0, slope*in otherwise, element-wise
// over the full local real slab (halo cells included, so no exchange is
// needed before a following stencil reads them).
//
// Input and output must be host-visible partitions of the same distribution
// with equal local real shapes. Rows are processed in contiguous chunks so
// the pitch padding between rows is skipped, never read.
func LeakyReLU[T Float, A tensor.Allocator](in, out *tensor.Tensor[T, A], slope T) error {
	if err := checkPair(in, out); err != nil {
		return err
	}
	src, dst := in.Data(), out.Data()
	width := in.LocalRealShape()[0]
	pitch := in.Pitch()
	rows := len(src) / pitch

	parallel.ForRanges(rows, func(start, end int) {
		for r := start; r < end; r++ {
			rowOff := r * pitch
			for i := rowOff; i < rowOff+width; i++ {
				v := src[i]
				if v < 0 {
					v *= slope
				}
				dst[i] = v
			}
		}
	}, parallel.DefaultConfig())
	return nil
}

// LeakyReLUBackward computes dIn = dOut where in > 0, slope*dOut otherwise:
// the gradient of LeakyReLU with respect to its input.
func LeakyReLUBackward[T Float, A tensor.Allocator](in, dOut, dIn *tensor.Tensor[T, A], slope T) error {
	if err := checkPair(in, dOut); err != nil {
		return err
	}
	if err := checkPair(in, dIn); err != nil {
		return err
	}
	src, grad, dst := in.Data(), dOut.Data(), dIn.Data()
	width := in.LocalRealShape()[0]
	pitch := in.Pitch()
	rows := len(src) / pitch

	parallel.ForRanges(rows, func(start, end int) {
		for r := start; r < end; r++ {
			rowOff := r * pitch
			for i := rowOff; i < rowOff+width; i++ {
				g := grad[i]
				if src[i] < 0 {
					g *= slope
				}
				dst[i] = g
			}
		}
	}, parallel.DefaultConfig())
	return nil
}

func checkPair[T Float, A tensor.Allocator](a, b *tensor.Tensor[T, A]) error {
	if a.Data() == nil || b.Data() == nil {
		return tensor.ErrNotAllocated
	}
	if !a.LocalRealShape().Equal(b.LocalRealShape()) {
		return fmt.Errorf("%w: local real shapes %v vs %v",
			tensor.ErrDimensionMismatch, a.LocalRealShape(), b.LocalRealShape())
	}
	if a.Pitch() != b.Pitch() {
		return fmt.Errorf("%w: pitches %d vs %d differ",
			tensor.ErrDimensionMismatch, a.Pitch(), b.Pitch())
	}
	return nil
}
