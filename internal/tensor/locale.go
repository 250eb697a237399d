package tensor

import (
	"fmt"

	"github.com/mosaic-ml/mosaic/internal/group"
)

// Locale binds the calling process's identity within a process group to its
// logical position in a Distribution's partition grid.
//
// A Locale is a cheap value: it holds only the group handle and is valid for
// as long as that handle is. Copy freely.
type Locale struct {
	group group.Group
}

// NewLocale binds a Locale to a process group.
func NewLocale(g group.Group) Locale {
	return Locale{group: g}
}

// Rank returns the caller's rank within the process group.
func (l Locale) Rank() int { return l.group.Rank() }

// Size returns the process group's size.
func (l Locale) Size() int { return l.group.Size() }

// Group returns the underlying process-group handle.
func (l Locale) Group() group.Group { return l.group }

// GridCoord unravels the caller's rank into a coordinate in the given
// partition grid, with dimension 0 varying fastest, the same iteration
// order the Offset arithmetic uses, so rank r sits at the partition whose
// linear grid offset is r.
//
// Returns ErrRankMismatch if the group size does not equal the number of
// partitions in the grid.
func (l Locale) GridCoord(grid Shape) (Index, error) {
	if l.Size() != grid.NumElements() {
		return nil, fmt.Errorf("%w: group size %d, grid %v has %d partitions",
			ErrRankMismatch, l.Size(), grid, grid.NumElements())
	}
	coord := make(Index, len(grid))
	r := l.Rank()
	for dim := range grid {
		coord[dim] = r % grid[dim]
		r /= grid[dim]
	}
	return coord, nil
}

// RankOf is the inverse of GridCoord: the rank owning the partition at the
// given grid coordinate. Used to locate halo neighbors.
func RankOf(coord Index, grid Shape) (int, error) {
	off, err := Offset(coord, grid, 0)
	if err != nil {
		return -1, err
	}
	return off, nil
}
