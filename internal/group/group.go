// Package group provides the process-group capability consumed by the tensor
// core: rank and size queries plus a blocking barrier.
//
// The core itself only ever asks a group for Rank and Size; Barrier exists
// for operator collaborators that need to synchronize around tensor
// operations. Transport-backed groups (MPI, sockets) plug in behind the same
// interface; this package ships a single-process group and an in-process
// multi-member group used to exercise multi-rank distributions in one
// process.
package group

import (
	"fmt"
	"sync"
)

// Group is the process-group capability: the caller's rank, the group size,
// and a blocking barrier across all members.
type Group interface {
	// Rank returns the caller's rank within the group, in [0, Size).
	Rank() int
	// Size returns the number of ranks in the group.
	Size() int
	// Barrier blocks until every rank in the group has entered it.
	Barrier()
}

// Single is the trivial one-member group: rank 0, size 1, no-op barrier.
type Single struct{}

// Rank returns 0.
func (Single) Rank() int { return 0 }

// Size returns 1.
func (Single) Size() int { return 1 }

// Barrier returns immediately.
func (Single) Barrier() {}

// localShared is the state shared by all members of an in-process group.
// The barrier is a generation-counted rendezvous: the last arriving member
// bumps the generation and wakes the rest.
type localShared struct {
	size    int
	mu      sync.Mutex
	cond    *sync.Cond
	arrived int
	gen     uint64
}

// Local is one member of an in-process group. Each member is typically owned
// by its own goroutine, mirroring one process per partition.
type Local struct {
	rank   int
	shared *localShared
}

// NewLocal creates an in-process group of the given size and returns one
// member per rank.
func NewLocal(size int) ([]*Local, error) {
	if size <= 0 {
		return nil, fmt.Errorf("group size must be > 0, got %d", size)
	}
	shared := &localShared{size: size}
	shared.cond = sync.NewCond(&shared.mu)
	members := make([]*Local, size)
	for rank := range members {
		members[rank] = &Local{rank: rank, shared: shared}
	}
	return members, nil
}

// Rank returns this member's rank.
func (g *Local) Rank() int { return g.rank }

// Size returns the group size.
func (g *Local) Size() int { return g.shared.size }

// Barrier blocks until all members of the group have entered it.
func (g *Local) Barrier() {
	s := g.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.gen
	s.arrived++
	if s.arrived == s.size {
		// Last one in releases the generation.
		s.arrived = 0
		s.gen++
		s.cond.Broadcast()
		return
	}
	for gen == s.gen {
		s.cond.Wait()
	}
}
