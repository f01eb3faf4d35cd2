package timeseries

import (
	"maps"
	"time"
)

// KindCounter identifies counter series.
const KindCounter = "counter"

// Series is the capability set shared by every metric kind. Counters are the
// only kind today; gauges or histograms would bring their own aggregation.
type Series interface {
	Name() string
	Kind() string
	Labels() map[string]string
	// Accumulate folds value into the bucket at ts.
	Accumulate(ts time.Time, value int64)
	// WindowedSum aggregates buckets with now-since < t <= now.
	WindowedSum(now time.Time, since time.Duration) int64
}

// CounterSeries is one named counter. Each bucket holds the number of events
// seen during one second.
type CounterSeries struct {
	name   string
	labels map[string]string
	points *OrderedBuffer
}

var _ Series = (*CounterSeries)(nil)

// NewCounterSeries creates an empty counter that keeps at most maxLength
// buckets.
func NewCounterSeries(name string, labels map[string]string, maxLength int) (*CounterSeries, error) {
	buf, err := NewOrderedBuffer(maxLength)
	if err != nil {
		return nil, err
	}
	return &CounterSeries{
		name:   name,
		labels: maps.Clone(labels),
		points: buf,
	}, nil
}

// Name returns the series name, e.g. "/api.200".
func (c *CounterSeries) Name() string { return c.name }

// Kind returns KindCounter.
func (c *CounterSeries) Kind() string { return KindCounter }

// Labels returns a copy of the last label snapshot.
func (c *CounterSeries) Labels() map[string]string { return maps.Clone(c.labels) }

// SetLabels replaces the label snapshot.
func (c *CounterSeries) SetLabels(labels map[string]string) {
	c.labels = maps.Clone(labels)
}

// AddDataPoint records a single event at ts.
func (c *CounterSeries) AddDataPoint(ts time.Time) {
	c.Add(ts, 1)
}

// Add adds increment to the bucket at ts, creating the bucket if needed.
// Creating a bucket on a full series evicts the oldest one.
func (c *CounterSeries) Add(ts time.Time, increment int64) {
	if current, ok := c.points.Get(ts); ok {
		c.points.Set(ts, current+increment)
		return
	}
	c.points.Set(ts, increment)
}

// Accumulate implements Series.
func (c *CounterSeries) Accumulate(ts time.Time, value int64) {
	c.Add(ts, value)
}

// TotalCountSince sums the buckets with now-since < t <= now. The lower
// bound is exclusive so consecutive windows never count a bucket twice.
func (c *CounterSeries) TotalCountSince(now time.Time, since time.Duration) int64 {
	var total int64
	c.points.AscendWindow(now.Add(-since), now, func(p DataPoint) bool {
		total += p.Count
		return true
	})
	return total
}

// WindowedSum implements Series.
func (c *CounterSeries) WindowedSum(now time.Time, since time.Duration) int64 {
	return c.TotalCountSince(now, since)
}

// Count returns the bucket value at ts.
func (c *CounterSeries) Count(ts time.Time) (int64, bool) {
	return c.points.Get(ts)
}

// Len returns the number of buckets held.
func (c *CounterSeries) Len() int { return c.points.Len() }

// Points returns the buckets in ascending order.
func (c *CounterSeries) Points() []DataPoint { return c.points.Points() }
