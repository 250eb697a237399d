//go:build windows

// Copyright 2026 Mosaic ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU device-memory allocator backend.
//
// Tensors allocated through it live in GPU memory with rows pitched to the
// 256-byte copy alignment; their contents are moved with Allocator.Copy and
// host code must cross Wait() before inspecting readbacks.
//
// Importing this package registers the "webgpu" tag with the allocator
// registry, so configuration-driven callers can select it by name.
//
// Example:
//
//	import (
//	    "github.com/mosaic-ml/mosaic/backend/webgpu"
//	    "github.com/mosaic-ml/mosaic/tensor"
//	)
//
//	func main() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    t, _ := tensor.New[float32](tensor.Shape{64, 32}, loc, dist, gpu)
//	}
package webgpu

import (
	internalwebgpu "github.com/mosaic-ml/mosaic/internal/backend/webgpu"
	"github.com/mosaic-ml/mosaic/tensor"
)

// Device owns the WebGPU instance, adapter, device and queue.
type Device = internalwebgpu.Device

// Allocator is the pitched device-memory allocator.
type Allocator = internalwebgpu.Allocator

// Compile-time check that Allocator implements tensor.Allocator.
var _ tensor.Allocator = (*Allocator)(nil)

// New initializes WebGPU and returns a device allocator.
// Returns an error if no compatible GPU is available.
func New() (*Allocator, error) {
	dev, err := internalwebgpu.NewDevice()
	if err != nil {
		return nil, err
	}
	return internalwebgpu.NewAllocator(dev), nil
}
