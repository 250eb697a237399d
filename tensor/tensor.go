// Copyright 2026 Mosaic ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for Mosaic's distributed tensor
// core.
//
// The package defines the types a distributed operator needs:
//   - Tensor[T, A]: one partition's device- or host-resident slab of a
//     globally distributed array, with halo regions
//   - Distribution: how a global shape is split into an overlapping grid
//   - Locale: the caller's rank bound to its partition-grid coordinate
//   - Allocator, Buffer: the memory-space capability a Tensor is generic over
//   - Shape, Index: dimension-0-fastest shape and coordinate arithmetic
//
// Example:
//
//	loc := tensor.NewLocale(tensor.SingleProcess())
//	dist, _ := tensor.MakeSymmetricDistribution(tensor.Shape{1, 1}, tensor.Shape{1, 0})
//	t, _ := tensor.New[float32](tensor.Shape{64, 32}, loc, dist, cpu.New())
//	if err := t.Allocate(); err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Free()
package tensor

import (
	"github.com/mosaic-ml/mosaic/internal/group"
	"github.com/mosaic-ml/mosaic/internal/tensor"
)

// Type aliases for public API

// DType is a constraint for tensor element types.
// Supported types: float32, float64, int32, int64, uint8.
type DType = tensor.DType

// DataType represents the runtime data type of a tensor buffer.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Float16 DataType = tensor.Float16
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
)

// Device represents the memory space where tensor data resides.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	WebGPU Device = tensor.WebGPU
)

// Shape represents the extents of a tensor, one per dimension, with
// dimension 0 fastest-varying in memory.
type Shape = tensor.Shape

// Index represents a coordinate relative to some Shape.
type Index = tensor.Index

// Distribution describes how a global shape is partitioned into a grid with
// per-dimension halo overlaps.
type Distribution = tensor.Distribution

// Locale binds a process's rank within its group to a partition-grid
// coordinate.
type Locale = tensor.Locale

// Allocator is the memory-space capability a Tensor is parametric over.
type Allocator = tensor.Allocator

// Buffer is a handle to a contiguous allocation in some memory space.
type Buffer = tensor.Buffer

// HostBuffer is a Buffer whose memory the host can address directly.
type HostBuffer = tensor.HostBuffer

// CopyDirection describes the memory spaces involved in an Allocator.Copy.
type CopyDirection = tensor.CopyDirection

// Copy directions.
const (
	HostToHost     CopyDirection = tensor.HostToHost
	HostToDevice   CopyDirection = tensor.HostToDevice
	DeviceToHost   CopyDirection = tensor.DeviceToHost
	DeviceToDevice CopyDirection = tensor.DeviceToDevice
)

// HaloSide selects the head or tail halo of a dimension.
type HaloSide = tensor.HaloSide

// Halo sides.
const (
	HaloHead HaloSide = tensor.HaloHead
	HaloTail HaloSide = tensor.HaloTail
)

// ByteRange is a contiguous span of a tensor's buffer, in bytes.
type ByteRange = tensor.ByteRange

// Group is the injected process-group capability: rank, size and a blocking
// barrier. Transport-backed implementations (e.g. MPI bindings) satisfy the
// same interface.
type Group = group.Group

// Tensor is one partition's slab of a globally distributed array, generic
// over element type T and allocator capability A. See the internal package
// documentation for the full lifecycle contract.
type Tensor[T DType, A Allocator] = tensor.Tensor[T, A]

// Sentinel errors, matched with errors.Is.
var (
	ErrDimensionMismatch = tensor.ErrDimensionMismatch
	ErrBoundsViolation   = tensor.ErrBoundsViolation
	ErrInvalidOverlap    = tensor.ErrInvalidOverlap
	ErrRankMismatch      = tensor.ErrRankMismatch
	ErrAllocationFailure = tensor.ErrAllocationFailure
	ErrAlreadyAllocated  = tensor.ErrAlreadyAllocated
	ErrAlreadyViewing    = tensor.ErrAlreadyViewing
	ErrNotAllocated      = tensor.ErrNotAllocated
)

// New constructs an unallocated Tensor for the caller's partition of the
// given global shape.
func New[T DType, A Allocator](global Shape, loc Locale, dist Distribution, alloc A) (*Tensor[T, A], error) {
	return tensor.New[T, A](global, loc, dist, alloc)
}

// MakeOverlappedDistribution constructs a Distribution with separate head
// and tail overlaps per dimension.
func MakeOverlappedDistribution(grid, headOverlap, tailOverlap Shape) (Distribution, error) {
	return tensor.MakeOverlappedDistribution(grid, headOverlap, tailOverlap)
}

// MakeSymmetricDistribution constructs a Distribution with the same overlap
// on both sides of every dimension.
func MakeSymmetricDistribution(grid, overlap Shape) (Distribution, error) {
	return tensor.MakeSymmetricDistribution(grid, overlap)
}

// NewLocale binds a Locale to a process group.
func NewLocale(g Group) Locale {
	return tensor.NewLocale(g)
}

// SingleProcess returns the trivial one-member process group: rank 0,
// size 1, no-op barrier.
func SingleProcess() Group {
	return group.Single{}
}

// LocalGroup creates an in-process group of the given size and returns one
// member per rank. Useful for exercising multi-rank distributions without a
// transport: run each member in its own goroutine.
func LocalGroup(size int) ([]Group, error) {
	members, err := group.NewLocal(size)
	if err != nil {
		return nil, err
	}
	groups := make([]Group, len(members))
	for i, m := range members {
		groups[i] = m
	}
	return groups, nil
}

// Offset returns the linear offset of idx within a buffer described by
// shape, optionally pitched at dimension 0.
func Offset(idx Index, shape Shape, pitch int) (int, error) {
	return tensor.Offset(idx, shape, pitch)
}

// RankOf returns the rank owning the partition at the given grid coordinate.
func RankOf(coord Index, grid Shape) (int, error) {
	return tensor.RankOf(coord, grid)
}

// RegisterAllocator registers an allocator factory under a backend tag.
func RegisterAllocator(tag string, factory func() (Allocator, error)) {
	tensor.RegisterAllocator(tag, factory)
}

// NewAllocator creates the allocator registered under tag.
func NewAllocator(tag string) (Allocator, error) {
	return tensor.NewAllocator(tag)
}

// RegisteredAllocators returns the sorted tags of all registered backends.
func RegisteredAllocators() []string {
	return tensor.RegisteredAllocators()
}
