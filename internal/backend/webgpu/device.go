//go:build windows

// Package webgpu implements the device-memory allocator capability over
// WebGPU buffers, using go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO
// bindings. Tensors allocated through it live in GPU memory; their contents
// are moved with Allocator.Copy through staging buffers.
package webgpu

import (
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Device owns the WebGPU instance, adapter, device and queue shared by all
// allocations. Release it when done to free GPU resources.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterInfo *wgpu.AdapterInfo
}

// NewDevice initializes WebGPU and returns a Device.
// Returns an error if no compatible adapter is available.
func NewDevice() (dev *Device, err error) {
	// Recover from panic if the wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = errors.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, errors.Wrap(adapterErr, "webgpu: failed to request adapter")
	}

	adapterInfo := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(deviceErr, "webgpu: failed to request device")
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: failed to get queue")
	}

	d := &Device{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		adapterInfo: &adapterInfo,
	}
	klog.V(1).Infof("webgpu: device ready (%s)", d.Name())
	return d, nil
}

// Name returns the adapter's device name, if known.
func (d *Device) Name() string {
	if d.adapterInfo == nil {
		return "unknown"
	}
	return d.adapterInfo.Name
}

// Wait blocks until all work submitted to the queue so far has completed.
// This is the synchronization point host code must cross before inspecting
// buffers it asked the device to fill.
func (d *Device) Wait() error {
	// Queue ordering makes a mapped readback of a sentinel buffer complete
	// only after all previously submitted work.
	sentinel := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  4,
	})
	defer sentinel.Release()
	if err := sentinel.MapAsync(d.device, wgpu.MapModeRead, 0, 4); err != nil {
		return errors.Wrap(err, "webgpu: wait failed")
	}
	sentinel.Unmap()
	return nil
}

// Release frees all GPU resources owned by the device.
func (d *Device) Release() {
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

// upload creates a GPU buffer initialized with data, usable as a copy source.
func (d *Device) upload(data []byte) *wgpu.Buffer {
	size := alignUp(uint64(len(data)), 4)
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()
	return buffer
}

// readback copies size bytes starting at srcOff from a GPU buffer into host
// memory through a staging buffer, blocking until the copy completes.
func (d *Device) readback(src *wgpu.Buffer, srcOff, size uint64) ([]byte, error) {
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, srcOff, staging, 0, size)
	cmdBuffer := encoder.Finish(nil)
	d.queue.Submit(cmdBuffer)

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, errors.Wrap(err, "webgpu: failed to map staging buffer")
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	staging.Unmap()

	return result, nil
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
