// Copyright 2026 Mosaic ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the host-memory allocator backends.
package cpu

import (
	internaltensor "github.com/mosaic-ml/mosaic/internal/tensor"
	"github.com/mosaic-ml/mosaic/tensor"
)

// Allocator is the plain host-heap allocator: the reported pitch always
// equals the requested row width.
type Allocator = internaltensor.HostAllocator

// AlignedAllocator is the pitched host variant: row pitches are rounded up
// to a configurable byte alignment.
type AlignedAllocator = internaltensor.AlignedHostAllocator

// Compile-time checks that both variants implement tensor.Allocator.
var (
	_ tensor.Allocator = Allocator{}
	_ tensor.Allocator = AlignedAllocator{}
)

// New creates a plain host allocator.
//
// Example:
//
//	t, _ := tensor.New[float32](tensor.Shape{64, 32}, loc, dist, cpu.New())
func New() Allocator {
	return Allocator{}
}

// NewAligned creates a host allocator whose row pitch is a multiple of
// alignment bytes. alignment <= 0 selects the cache-line default.
func NewAligned(alignment int) AlignedAllocator {
	return AlignedAllocator{Alignment: alignment}
}
