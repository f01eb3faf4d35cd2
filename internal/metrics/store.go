package metrics

import (
	"slices"
	"strings"
	"time"

	"github.com/tphakala/logwatch/internal/timeseries"
)

// DefaultMaxSeriesLength is the per-series bucket capacity used when none is
// configured.
const DefaultMaxSeriesLength = 100

// CounterStore is the registry of counter series keyed by metric name.
// Iteration is in insertion order, which makes tie-breaks in callers stable.
//
// CounterStore performs no locking; a single goroutine must own it.
type CounterStore struct {
	maxSeriesLength int

	series map[string]*timeseries.CounterSeries
	order  []string

	sections     []string
	sectionIndex map[string]struct{}
}

// NewCounterStore creates an empty store whose series keep at most
// maxSeriesLength buckets each.
func NewCounterStore(maxSeriesLength int) (*CounterStore, error) {
	if maxSeriesLength <= 0 {
		return nil, timeseries.ErrInvalidCapacity
	}
	return &CounterStore{
		maxSeriesLength: maxSeriesLength,
		series:          make(map[string]*timeseries.CounterSeries),
		sectionIndex:    make(map[string]struct{}),
	}, nil
}

// Ingest records one event for the series called name, creating the series
// on first sight. The series' labels are replaced with those of rec.
func (s *CounterStore) Ingest(name string, rec Record) {
	series, ok := s.series[name]
	if !ok {
		// Capacity was validated in NewCounterStore, so this cannot fail.
		series, _ = timeseries.NewCounterSeries(name, rec.Labels(), s.maxSeriesLength)
		s.series[name] = series
		s.order = append(s.order, name)
		s.addSection(rec.Section)
	} else {
		series.SetLabels(rec.Labels())
	}
	series.AddDataPoint(rec.Timestamp)
}

func (s *CounterStore) addSection(section string) {
	if _, ok := s.sectionIndex[section]; ok {
		return
	}
	s.sectionIndex[section] = struct{}{}
	s.sections = append(s.sections, section)
}

// TotalCountSince sums events with now-since < t <= now across every series
// whose name contains filter. An empty filter matches all series.
//
// Matching is a plain substring test anywhere in the name, so "4" matches
// "/report.404" and "/api" matches "/api2.200". Callers wanting a single
// section or status family must pick filters that cannot collide.
func (s *CounterStore) TotalCountSince(now time.Time, since time.Duration, filter string) int64 {
	var total int64
	for _, name := range s.order {
		if strings.Contains(name, filter) {
			total += s.series[name].TotalCountSince(now, since)
		}
	}
	return total
}

// TotalCountSinceAny is like TotalCountSince but matches a series if any of
// filters is a substring of its name. Each series is counted at most once.
// An empty filter list matches all series.
func (s *CounterStore) TotalCountSinceAny(now time.Time, since time.Duration, filters []string) int64 {
	if len(filters) == 0 {
		return s.TotalCountSince(now, since, "")
	}
	var total int64
	for _, name := range s.order {
		if matchesAny(name, filters) {
			total += s.series[name].TotalCountSince(now, since)
		}
	}
	return total
}

func matchesAny(name string, filters []string) bool {
	return slices.ContainsFunc(filters, func(f string) bool {
		return strings.Contains(name, f)
	})
}

// Sections returns the distinct sections seen, in first-seen order.
func (s *CounterStore) Sections() []string {
	return slices.Clone(s.sections)
}

// SeriesNames returns all series names in creation order.
func (s *CounterStore) SeriesNames() []string {
	return slices.Clone(s.order)
}

// Series returns the named series.
func (s *CounterStore) Series(name string) (*timeseries.CounterSeries, bool) {
	series, ok := s.series[name]
	return series, ok
}

// Len returns the number of series.
func (s *CounterStore) Len() int {
	return len(s.order)
}

// MaxSeriesLength returns the per-series bucket capacity.
func (s *CounterStore) MaxSeriesLength() int {
	return s.maxSeriesLength
}
