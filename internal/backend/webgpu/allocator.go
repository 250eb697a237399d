//go:build windows

package webgpu

import (
	"github.com/dustin/go-humanize"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/mosaic-ml/mosaic/internal/tensor"
)

// copyAlignment is WebGPU's required alignment for buffer-to-buffer copy
// offsets and row pitches (COPY_BYTES_PER_ROW_ALIGNMENT).
const copyAlignment = 256

// deviceBuffer is a GPU-resident tensor.Buffer. It does not implement
// tensor.HostBuffer: contents are reached through Allocator.Copy.
type deviceBuffer struct {
	buf  *wgpu.Buffer
	size int
}

func (b *deviceBuffer) ByteSize() int { return b.size }

func (b *deviceBuffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

// Allocator implements the tensor allocator capability over WebGPU device
// memory. It is the pitched device variant: row pitches are rounded up to
// the 256-byte copy alignment, so every row can be the source or target of
// an aligned buffer copy.
type Allocator struct {
	dev *Device
}

// NewAllocator creates a device allocator over an initialized Device.
func NewAllocator(dev *Device) *Allocator {
	return &Allocator{dev: dev}
}

// Device returns tensor.WebGPU.
func (a *Allocator) Device() tensor.Device { return tensor.WebGPU }

// Wait blocks until all device work issued through this allocator completed.
func (a *Allocator) Wait() error { return a.dev.Wait() }

// Allocate creates a zero-initialized GPU buffer of height rows whose pitch
// is widthBytes rounded up to the copy alignment.
func (a *Allocator) Allocate(widthBytes, height int) (tensor.Buffer, int, error) {
	if widthBytes <= 0 || height <= 0 {
		return nil, 0, errors.Errorf("requested %d x %d bytes", widthBytes, height)
	}
	pitch := int(alignUp(uint64(widthBytes), copyAlignment))
	size := uint64(pitch * height)

	buf := a.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	if buf == nil {
		return nil, 0, errors.Errorf("device buffer creation failed for %s",
			humanize.IBytes(size))
	}
	klog.V(2).Infof("webgpu alloc: %s (%d rows, width %d padded to pitch %d)",
		humanize.IBytes(size), height, widthBytes, pitch)
	return &deviceBuffer{buf: buf, size: int(size)}, pitch, nil
}

// Zero fills a device byte range with zeros by copying from a zero-filled
// upload buffer. Offset and length must be 4-byte aligned, which holds for
// any whole-element range of a 4-byte element type.
func (a *Allocator) Zero(b tensor.Buffer, offsetBytes, nBytes int) error {
	db, err := asDeviceBuffer(b)
	if err != nil {
		return err
	}
	if err := checkRange(db, offsetBytes, nBytes); err != nil {
		return err
	}
	if nBytes == 0 {
		return nil
	}
	zeros := a.dev.upload(make([]byte, nBytes))
	defer zeros.Release()

	encoder := a.dev.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(zeros, 0, db.buf, uint64(offsetBytes), uint64(nBytes))
	cmdBuffer := encoder.Finish(nil)
	a.dev.queue.Submit(cmdBuffer)
	return nil
}

// Copy moves nBytes between buffers in the stated direction. Host buffers
// must be host allocator buffers; device buffers must come from this
// allocator. Device-side offsets and sizes must be 4-byte aligned.
func (a *Allocator) Copy(dst tensor.Buffer, dstOff int, src tensor.Buffer, srcOff int, nBytes int, dir tensor.CopyDirection) error {
	switch dir {
	case tensor.HostToHost:
		return tensor.HostAllocator{}.Copy(dst, dstOff, src, srcOff, nBytes, dir)

	case tensor.HostToDevice:
		hb, ok := src.(tensor.HostBuffer)
		if !ok {
			return errors.New("webgpu: copy source is not host-visible")
		}
		db, err := asDeviceBuffer(dst)
		if err != nil {
			return err
		}
		if err := checkRange(db, dstOff, nBytes); err != nil {
			return err
		}
		data := hb.Bytes()
		if srcOff < 0 || srcOff+nBytes > len(data) {
			return errors.Errorf("webgpu: source range [%d, %d) outside buffer of %d bytes",
				srcOff, srcOff+nBytes, len(data))
		}
		staged := a.dev.upload(data[srcOff : srcOff+nBytes])
		defer staged.Release()

		encoder := a.dev.device.CreateCommandEncoder(nil)
		encoder.CopyBufferToBuffer(staged, 0, db.buf, uint64(dstOff), uint64(nBytes))
		cmdBuffer := encoder.Finish(nil)
		a.dev.queue.Submit(cmdBuffer)
		return nil

	case tensor.DeviceToHost:
		db, err := asDeviceBuffer(src)
		if err != nil {
			return err
		}
		if err := checkRange(db, srcOff, nBytes); err != nil {
			return err
		}
		hb, ok := dst.(tensor.HostBuffer)
		if !ok {
			return errors.New("webgpu: copy destination is not host-visible")
		}
		data := hb.Bytes()
		if dstOff < 0 || dstOff+nBytes > len(data) {
			return errors.Errorf("webgpu: destination range [%d, %d) outside buffer of %d bytes",
				dstOff, dstOff+nBytes, len(data))
		}
		result, err := a.dev.readback(db.buf, uint64(srcOff), uint64(nBytes))
		if err != nil {
			return err
		}
		copy(data[dstOff:dstOff+nBytes], result)
		return nil

	case tensor.DeviceToDevice:
		sb, err := asDeviceBuffer(src)
		if err != nil {
			return err
		}
		db, err := asDeviceBuffer(dst)
		if err != nil {
			return err
		}
		if err := checkRange(sb, srcOff, nBytes); err != nil {
			return err
		}
		if err := checkRange(db, dstOff, nBytes); err != nil {
			return err
		}
		encoder := a.dev.device.CreateCommandEncoder(nil)
		encoder.CopyBufferToBuffer(sb.buf, uint64(srcOff), db.buf, uint64(dstOff), uint64(nBytes))
		cmdBuffer := encoder.Finish(nil)
		a.dev.queue.Submit(cmdBuffer)
		return nil

	default:
		return errors.Errorf("webgpu: unknown copy direction %v", dir)
	}
}

func asDeviceBuffer(b tensor.Buffer) (*deviceBuffer, error) {
	db, ok := b.(*deviceBuffer)
	if !ok {
		return nil, errors.New("webgpu: buffer was not allocated by this backend")
	}
	if db.buf == nil {
		return nil, errors.New("webgpu: buffer already released")
	}
	return db, nil
}

func checkRange(b *deviceBuffer, off, n int) error {
	if off < 0 || n < 0 || off+n > b.size {
		return errors.Errorf("webgpu: range [%d, %d) outside buffer of %d bytes", off, off+n, b.size)
	}
	if off%4 != 0 || n%4 != 0 {
		return errors.Errorf("webgpu: range [%d, %d) is not 4-byte aligned", off, off+n)
	}
	return nil
}

func init() {
	tensor.RegisterAllocator("webgpu", func() (tensor.Allocator, error) {
		dev, err := NewDevice()
		if err != nil {
			return nil, err
		}
		return NewAllocator(dev), nil
	})
}
