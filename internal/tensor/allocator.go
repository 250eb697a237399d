package tensor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

// Device represents the memory space a buffer lives in.
type Device int

// Supported memory spaces.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// CopyDirection describes the memory spaces involved in a Copy.
type CopyDirection int

// Copy directions between host and device memory.
const (
	HostToHost CopyDirection = iota
	HostToDevice
	DeviceToHost
	DeviceToDevice
)

// String returns a human-readable direction name.
func (dir CopyDirection) String() string {
	switch dir {
	case HostToHost:
		return "host→host"
	case HostToDevice:
		return "host→device"
	case DeviceToHost:
		return "device→host"
	case DeviceToDevice:
		return "device→device"
	default:
		return "unknown"
	}
}

// Buffer is a handle to a contiguous allocation in some memory space.
// Release frees the underlying memory; a released buffer must not be used.
type Buffer interface {
	ByteSize() int
	Release()
}

// HostBuffer is implemented by buffers whose memory is directly addressable
// by the host. Device-resident buffers do not implement it; their contents
// are reached through Allocator.Copy.
type HostBuffer interface {
	Buffer
	Bytes() []byte
}

// Allocator abstracts allocation, zeroing and copying for one memory space.
// A Tensor is parametric over this capability: the same container works over
// host heap memory and accelerator-device memory.
//
// Allocate requests height rows of widthBytes each and returns the buffer
// together with the pitch actually used: the byte stride between consecutive
// rows, which the allocator may round up from widthBytes for alignment. The
// pitch is capability-reported; callers must never assume a rounding policy.
type Allocator interface {
	Allocate(widthBytes, height int) (Buffer, int, error)
	// Zero fills b[offsetBytes, offsetBytes+nBytes) with zero bytes.
	Zero(b Buffer, offsetBytes, nBytes int) error
	// Copy moves nBytes between buffers. dir must match where dst and src
	// actually live; allocators reject directions they cannot serve.
	Copy(dst Buffer, dstOff int, src Buffer, srcOff int, nBytes int, dir CopyDirection) error
	// Device reports the memory space this allocator serves.
	Device() Device
}

// hostBuffer is a heap-backed Buffer.
type hostBuffer struct {
	data []byte
}

func (b *hostBuffer) ByteSize() int { return len(b.data) }
func (b *hostBuffer) Bytes() []byte { return b.data }
func (b *hostBuffer) Release()      { b.data = nil }

// HostAllocator allocates plain host heap memory. The reported pitch always
// equals the requested width: no padding.
type HostAllocator struct{}

// Allocate returns a zero-initialized host buffer of widthBytes*height bytes.
func (HostAllocator) Allocate(widthBytes, height int) (Buffer, int, error) {
	if widthBytes <= 0 || height <= 0 {
		return nil, 0, fmt.Errorf("%w: requested %d x %d bytes", ErrAllocationFailure, widthBytes, height)
	}
	buf := &hostBuffer{data: make([]byte, widthBytes*height)}
	klog.V(2).Infof("host alloc: %s (%d rows x %d bytes)",
		humanize.IBytes(uint64(len(buf.data))), height, widthBytes)
	return buf, widthBytes, nil
}

// Zero fills the given host byte range with zeros.
func (HostAllocator) Zero(b Buffer, offsetBytes, nBytes int) error {
	return hostZero(b, offsetBytes, nBytes)
}

// Copy moves bytes between two host buffers. Only HostToHost is supported.
func (HostAllocator) Copy(dst Buffer, dstOff int, src Buffer, srcOff int, nBytes int, dir CopyDirection) error {
	if dir != HostToHost {
		return fmt.Errorf("host allocator cannot copy %s", dir)
	}
	return hostCopy(dst, dstOff, src, srcOff, nBytes)
}

// Device returns CPU.
func (HostAllocator) Device() Device { return CPU }

// AlignedHostAllocator is the pitched host variant: rows are padded so the
// pitch is a multiple of Alignment bytes. Useful for exercising pitched
// index arithmetic without a device, and for SIMD-friendly host layouts.
type AlignedHostAllocator struct {
	Alignment int
}

// Allocate returns a host buffer whose row pitch is widthBytes rounded up to
// the allocator's alignment.
func (a AlignedHostAllocator) Allocate(widthBytes, height int) (Buffer, int, error) {
	if widthBytes <= 0 || height <= 0 {
		return nil, 0, fmt.Errorf("%w: requested %d x %d bytes", ErrAllocationFailure, widthBytes, height)
	}
	align := a.Alignment
	if align <= 0 {
		align = 64 // Cache line.
	}
	pitch := (widthBytes + align - 1) / align * align
	buf := &hostBuffer{data: make([]byte, pitch*height)}
	klog.V(2).Infof("aligned host alloc: %s (%d rows, width %d padded to pitch %d)",
		humanize.IBytes(uint64(len(buf.data))), height, widthBytes, pitch)
	return buf, pitch, nil
}

// Zero fills the given host byte range with zeros.
func (AlignedHostAllocator) Zero(b Buffer, offsetBytes, nBytes int) error {
	return hostZero(b, offsetBytes, nBytes)
}

// Copy moves bytes between two host buffers. Only HostToHost is supported.
func (AlignedHostAllocator) Copy(dst Buffer, dstOff int, src Buffer, srcOff int, nBytes int, dir CopyDirection) error {
	if dir != HostToHost {
		return fmt.Errorf("aligned host allocator cannot copy %s", dir)
	}
	return hostCopy(dst, dstOff, src, srcOff, nBytes)
}

// Device returns CPU.
func (AlignedHostAllocator) Device() Device { return CPU }

func hostZero(b Buffer, offsetBytes, nBytes int) error {
	hb, ok := b.(HostBuffer)
	if !ok {
		return fmt.Errorf("buffer is not host-visible")
	}
	data := hb.Bytes()
	if offsetBytes < 0 || nBytes < 0 || offsetBytes+nBytes > len(data) {
		return fmt.Errorf("%w: zero range [%d, %d) in buffer of %d bytes",
			ErrBoundsViolation, offsetBytes, offsetBytes+nBytes, len(data))
	}
	clear(data[offsetBytes : offsetBytes+nBytes])
	return nil
}

func hostCopy(dst Buffer, dstOff int, src Buffer, srcOff int, nBytes int) error {
	dh, ok := dst.(HostBuffer)
	if !ok {
		return fmt.Errorf("destination buffer is not host-visible")
	}
	sh, ok := src.(HostBuffer)
	if !ok {
		return fmt.Errorf("source buffer is not host-visible")
	}
	dd, sd := dh.Bytes(), sh.Bytes()
	if dstOff < 0 || dstOff+nBytes > len(dd) || srcOff < 0 || srcOff+nBytes > len(sd) {
		return fmt.Errorf("%w: copy of %d bytes at dst %d/%d, src %d/%d",
			ErrBoundsViolation, nBytes, dstOff, len(dd), srcOff, len(sd))
	}
	copy(dd[dstOff:dstOff+nBytes], sd[srcOff:srcOff+nBytes])
	return nil
}

// Allocator registry, keyed by a backend tag. Replaces compile-time backend
// selection with a small runtime factory: device backends register
// themselves from init, callers pick by name (typically from configuration).
var (
	registryMu sync.RWMutex
	registry   = map[string]func() (Allocator, error){}
)

// RegisterAllocator registers an allocator factory under a backend tag.
// Panics on duplicate registration.
func RegisterAllocator(tag string, factory func() (Allocator, error)) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[tag]; dup {
		panic(fmt.Sprintf("tensor: allocator %q registered twice", tag))
	}
	registry[tag] = factory
}

// NewAllocator creates the allocator registered under tag.
func NewAllocator(tag string) (Allocator, error) {
	registryMu.RLock()
	factory, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown allocator backend %q (registered: %v)", tag, RegisteredAllocators())
	}
	return factory()
}

// RegisteredAllocators returns the sorted tags of all registered backends.
func RegisteredAllocators() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func init() {
	RegisterAllocator("host", func() (Allocator, error) {
		return HostAllocator{}, nil
	})
	RegisterAllocator("host-aligned", func() (Allocator, error) {
		return AlignedHostAllocator{}, nil
	})
}
