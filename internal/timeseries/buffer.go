// Package timeseries holds the bounded per-second counters that back every
// metric series.
package timeseries

import (
	"errors"
	"time"

	"github.com/google/btree"
)

// btreeDegree is the B-tree branching factor. Buffers are small (around a
// hundred points) so a low degree keeps nodes compact.
const btreeDegree = 8

// ErrInvalidCapacity is returned when a buffer is created with a
// non-positive maximum length.
var ErrInvalidCapacity = errors.New("timeseries: max length must be positive")

// DataPoint is the accumulated count observed at one timestamp.
type DataPoint struct {
	Timestamp time.Time
	Count     int64
}

func lessDataPoint(a, b DataPoint) bool {
	return a.Timestamp.Before(b.Timestamp)
}

// OrderedBuffer is a capacity-limited mapping from timestamp to count that
// always iterates in ascending timestamp order. Keys may arrive out of
// order; once the buffer is full, inserting evicts the smallest timestamp,
// even when that is the key that was just inserted.
//
// OrderedBuffer is not safe for concurrent use.
type OrderedBuffer struct {
	tree      *btree.BTreeG[DataPoint]
	maxLength int
}

// NewOrderedBuffer creates an empty buffer holding at most maxLength points.
func NewOrderedBuffer(maxLength int) (*OrderedBuffer, error) {
	if maxLength <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &OrderedBuffer{
		tree:      btree.NewG(btreeDegree, lessDataPoint),
		maxLength: maxLength,
	}, nil
}

// Set inserts count at ts, or overwrites the count already stored there.
func (b *OrderedBuffer) Set(ts time.Time, count int64) {
	b.tree.ReplaceOrInsert(DataPoint{Timestamp: ts, Count: count})
	for b.tree.Len() > b.maxLength {
		b.tree.DeleteMin()
	}
}

// Get returns the count stored at ts.
func (b *OrderedBuffer) Get(ts time.Time) (int64, bool) {
	p, ok := b.tree.Get(DataPoint{Timestamp: ts})
	return p.Count, ok
}

// Has reports whether ts is present.
func (b *OrderedBuffer) Has(ts time.Time) bool {
	return b.tree.Has(DataPoint{Timestamp: ts})
}

// Len returns the number of stored points.
func (b *OrderedBuffer) Len() int {
	return b.tree.Len()
}

// MaxLength returns the capacity the buffer was created with.
func (b *OrderedBuffer) MaxLength() int {
	return b.maxLength
}

// Oldest returns the point with the smallest timestamp.
func (b *OrderedBuffer) Oldest() (DataPoint, bool) {
	return b.tree.Min()
}

// Newest returns the point with the largest timestamp.
func (b *OrderedBuffer) Newest() (DataPoint, bool) {
	return b.tree.Max()
}

// Ascend calls fn for every point in ascending timestamp order until fn
// returns false.
func (b *OrderedBuffer) Ascend(fn func(DataPoint) bool) {
	b.tree.Ascend(fn)
}

// AscendWindow calls fn for every point with start < t <= end, in ascending
// order, until fn returns false.
func (b *OrderedBuffer) AscendWindow(start, end time.Time, fn func(DataPoint) bool) {
	if end.Before(start) {
		return
	}
	b.tree.AscendGreaterOrEqual(DataPoint{Timestamp: start}, func(p DataPoint) bool {
		if !p.Timestamp.After(start) {
			return true
		}
		if p.Timestamp.After(end) {
			return false
		}
		return fn(p)
	})
}

// Points returns a copy of all points in ascending order.
func (b *OrderedBuffer) Points() []DataPoint {
	out := make([]DataPoint, 0, b.tree.Len())
	b.tree.Ascend(func(p DataPoint) bool {
		out = append(out, p)
		return true
	})
	return out
}
