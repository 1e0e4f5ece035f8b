// Package window implements the bounded FIFO of block-level SFS
// estimates whose mean is the driver's current parameter estimate, with
// a lazily-maintained running sum (spec.md Design Notes).
package window

import (
	"container/list"

	"github.com/winsfs/winsfs/internal/sfs"
)

// recomputeEvery bounds floating-point drift in the running sum by
// recomputing it from scratch every N pushes (spec.md Design Notes).
const recomputeEvery = 100

// Window is a bounded FIFO of up to Capacity block-SFS estimates. The
// current estimate is the arithmetic mean of the entries currently held.
type Window struct {
	capacity int
	entries  *list.List // of *sfs.Sfs, oldest at Front
	sum      *sfs.Sfs
	pushes   int
}

// New builds an empty Window of the given capacity (>= 1) over arrays of
// shape.
func New(capacity int, shape sfs.Shape) (*Window, error) {
	sum, err := sfs.New(shape)
	if err != nil {
		return nil, err
	}
	return &Window{
		capacity: capacity,
		entries:  list.New(),
		sum:      sum,
	}, nil
}

// Len returns the number of entries currently held.
func (w *Window) Len() int { return w.entries.Len() }

// Push inserts a new block-SFS, evicting the oldest entry if the window
// is already at capacity. The running sum is updated as new - evicted to
// avoid an O(capacity * len(shape)) recomputation per push; every
// recomputeEvery pushes it is rebuilt from scratch to bound drift.
func (w *Window) Push(block *sfs.Sfs) error {
	if err := w.sum.AddAssign(block); err != nil {
		return err
	}
	w.entries.PushBack(block)
	if w.entries.Len() > w.capacity {
		front := w.entries.Remove(w.entries.Front()).(*sfs.Sfs)
		if err := w.sum.SubAssign(front); err != nil {
			return err
		}
	}
	w.pushes++
	if w.pushes%recomputeEvery == 0 {
		w.recompute()
	}
	return nil
}

func (w *Window) recompute() {
	w.sum.Fill(0)
	for e := w.entries.Front(); e != nil; e = e.Next() {
		_ = w.sum.AddAssign(e.Value.(*sfs.Sfs))
	}
}

// Mean returns a freshly allocated Sfs holding the current window mean,
// i.e. the running sum scaled by 1/Len(). On an empty window the scale
// factor is +Inf and every entry of the result is NaN; callers must not
// call Mean before the first Push.
func (w *Window) Mean() *sfs.Sfs {
	mean := w.sum.Clone()
	mean.ScaleAssign(1 / float64(w.Len()))
	return mean
}

// Clear empties the window; used between epochs unless warm-start is
// configured (spec.md Lifecycle).
func (w *Window) Clear() {
	w.entries.Init()
	w.sum.Fill(0)
	w.pushes = 0
}
