package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaic-ml/mosaic/internal/group"
	"github.com/mosaic-ml/mosaic/internal/tensor"
)

const slope = float32(0.01)

func newPair(t *testing.T) (in, out *tensor.Tensor[float32, tensor.Allocator]) {
	t.Helper()
	dist, err := tensor.MakeSymmetricDistribution(tensor.Shape{1, 1}, tensor.Shape{0, 0})
	require.NoError(t, err)
	loc := tensor.NewLocale(group.Single{})

	// Aligned allocator so the operator must respect pitch padding.
	var alloc tensor.Allocator = tensor.AlignedHostAllocator{Alignment: 64}
	in, err = tensor.New[float32](tensor.Shape{5, 3}, loc, dist, alloc)
	require.NoError(t, err)
	out, err = tensor.New[float32](tensor.Shape{5, 3}, loc, dist, alloc)
	require.NoError(t, err)
	require.NoError(t, in.Allocate())
	require.NoError(t, out.Allocate())
	t.Cleanup(func() {
		in.Free()
		out.Free()
	})
	require.NoError(t, in.Zero())
	require.NoError(t, out.Zero())
	return in, out
}

func TestLeakyReLUForward(t *testing.T) {
	in, out := newPair(t)

	values := []float32{-2, -0.5, 0, 0.5, 2}
	for row := 0; row < 3; row++ {
		for col, v := range values {
			in.Set(v, col, row)
		}
	}

	require.NoError(t, LeakyReLU(in, out, slope))

	for row := 0; row < 3; row++ {
		for col, v := range values {
			want := v
			if v < 0 {
				want = v * slope
			}
			assert.Equal(t, want, out.At(col, row), "element (%d, %d)", col, row)
		}
	}
}

func TestLeakyReLUPaddingUntouched(t *testing.T) {
	in, out := newPair(t)

	// Poison the output's pitch padding; the operator must not write there.
	data := out.Data()
	width := out.LocalRealShape()[0]
	pitch := out.Pitch()
	for r := 0; r < 3; r++ {
		for i := r*pitch + width; i < (r+1)*pitch; i++ {
			data[i] = -99
		}
	}

	require.NoError(t, LeakyReLU(in, out, slope))

	for r := 0; r < 3; r++ {
		for i := r*pitch + width; i < (r+1)*pitch; i++ {
			assert.Equal(t, float32(-99), data[i], "padding at %d", i)
		}
	}
}

func TestLeakyReLUBackward(t *testing.T) {
	in, dOut := newPair(t)
	dIn, _ := newPair(t)

	in.Set(-1, 0, 0)
	in.Set(1, 1, 0)
	dOut.Set(10, 0, 0)
	dOut.Set(10, 1, 0)

	require.NoError(t, LeakyReLUBackward(in, dOut, dIn, slope))

	assert.Equal(t, slope*10, dIn.At(0, 0))
	assert.Equal(t, float32(10), dIn.At(1, 0))
}

func TestLeakyReLUErrors(t *testing.T) {
	in, _ := newPair(t)

	dist, err := tensor.MakeSymmetricDistribution(tensor.Shape{1, 1}, tensor.Shape{0, 0})
	require.NoError(t, err)
	loc := tensor.NewLocale(group.Single{})

	var alloc tensor.Allocator = tensor.AlignedHostAllocator{Alignment: 64}
	other, err := tensor.New[float32](tensor.Shape{4, 4}, loc, dist, alloc)
	require.NoError(t, err)

	// Unallocated output.
	assert.ErrorIs(t, LeakyReLU(in, other, slope), tensor.ErrNotAllocated)

	// Mismatched shapes.
	require.NoError(t, other.Allocate())
	defer other.Free()
	assert.ErrorIs(t, LeakyReLU(in, other, slope), tensor.ErrDimensionMismatch)
}
