// Package dump writes tensor slabs as plain listings for diagnostics: one
// element per line, ordered by local-real linear offset. It consumes only
// the tensor core's read accessors.
package dump

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/mosaic-ml/mosaic/internal/tensor"
)

// Write lists every local-real element of a host-visible tensor, one per
// line, in linear offset order. Pitch padding is skipped.
func Write[T tensor.DType, A tensor.Allocator](w io.Writer, t *tensor.Tensor[T, A]) error {
	data := t.Data()
	if data == nil {
		return tensor.ErrNotAllocated
	}
	bw := bufio.NewWriter(w)
	real := t.LocalRealShape()
	pitch := t.Pitch()
	rows := len(data) / pitch
	width := real[0]
	for r := 0; r < rows; r++ {
		rowOff := r * pitch
		for i := rowOff; i < rowOff+width; i++ {
			if _, err := fmt.Fprintln(bw, data[i]); err != nil {
				return errors.Wrap(err, "writing tensor dump")
			}
		}
	}
	return errors.Wrap(bw.Flush(), "flushing tensor dump")
}

// WriteFile dumps a tensor to the named file. The conventional name embeds
// the rank so each partition writes its own listing.
func WriteFile[T tensor.DType, A tensor.Allocator](path string, t *tensor.Tensor[T, A]) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating dump file %q", path)
	}
	defer f.Close()
	if err := Write(f, t); err != nil {
		return err
	}
	klog.V(1).Infof("rank %d: dumped %v to %s", t.Locale().Rank(), t.LocalRealShape(), path)
	return nil
}

// WriteRaw lists the elements of a raw pitched buffer, one per line, given
// its runtime data type. Used for listings of device readbacks, where no
// typed slice exists; Float16 elements are widened to float32 for printing.
func WriteRaw(w io.Writer, data []byte, dtype tensor.DataType, shape tensor.Shape, pitchElems int) error {
	if len(shape) == 0 {
		return errors.Errorf("cannot dump a scalar buffer listing, rank 0 shape")
	}
	elem := dtype.Size()
	rows := shape.NumElements() / shape[0]
	bw := bufio.NewWriter(w)
	for r := 0; r < rows; r++ {
		rowOff := r * pitchElems * elem
		for i := 0; i < shape[0]; i++ {
			off := rowOff + i*elem
			if off+elem > len(data) {
				return errors.Errorf("buffer of %d bytes too small for shape %v pitch %d",
					len(data), shape, pitchElems)
			}
			if _, err := fmt.Fprintln(bw, formatElement(data[off:off+elem], dtype)); err != nil {
				return errors.Wrap(err, "writing raw dump")
			}
		}
	}
	return errors.Wrap(bw.Flush(), "flushing raw dump")
}

func formatElement(b []byte, dtype tensor.DataType) string {
	switch dtype {
	case tensor.Float32:
		return fmt.Sprint(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case tensor.Float64:
		return fmt.Sprint(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	case tensor.Float16:
		return fmt.Sprint(tensor.Float16FromBits(binary.LittleEndian.Uint16(b)))
	case tensor.Int32:
		return fmt.Sprint(int32(binary.LittleEndian.Uint32(b)))
	case tensor.Int64:
		return fmt.Sprint(int64(binary.LittleEndian.Uint64(b)))
	case tensor.Uint8:
		return fmt.Sprint(b[0])
	default:
		return fmt.Sprintf("%x", b)
	}
}
