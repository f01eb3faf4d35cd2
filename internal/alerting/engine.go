package alerting

import (
	"fmt"
	"time"

	"github.com/tphakala/logwatch/internal/metrics"
)

// Transition describes a change of alert state.
type Transition struct {
	Kind      string
	Rate      float64
	Threshold float64
	At        time.Time
	Message   string
}

// Engine evaluates windowed request rates against a threshold and produces
// traffic summaries. It never reads the wall clock: every query takes the
// caller's notion of now.
//
// Engine shares the store's threading rules and must be driven from the
// goroutine that ingests into the store.
type Engine struct {
	store    *metrics.CounterStore
	cfg      EngineConfig
	elevated bool
}

// NewEngine creates an engine in the normal (not elevated) state.
func NewEngine(store *metrics.CounterStore, cfg EngineConfig) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil counter store", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{store: store, cfg: cfg.clone()}, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg.clone()
}

// Elevated reports whether traffic is currently considered elevated.
func (e *Engine) Elevated() bool {
	return e.elevated
}

// AverageRequestRate returns events per second over the windowSeconds ending
// at now, counting series matched by any of filters (all series when empty).
func (e *Engine) AverageRequestRate(now time.Time, windowSeconds int, filters []string) float64 {
	if windowSeconds < 1 {
		return 0
	}
	total := e.store.TotalCountSinceAny(now, seconds(windowSeconds), filters)
	return float64(total) / float64(windowSeconds)
}

// Evaluate advances the alert state machine. It reports a transition only
// when the rate crosses the threshold: normal to elevated when the rate is
// at or above it, elevated to normal when the rate drops below it.
func (e *Engine) Evaluate(now time.Time, windowSeconds int, filters []string) (Transition, bool) {
	rate := e.AverageRequestRate(now, windowSeconds, filters)
	ts := FormatTimestamp(now)

	switch {
	case !e.elevated && rate >= e.cfg.Threshold:
		e.elevated = true
		return Transition{
			Kind:      KindTrafficElevated,
			Rate:      rate,
			Threshold: e.cfg.Threshold,
			At:        now,
			Message:   fmt.Sprintf(alertFormat, rate, ts),
		}, true
	case e.elevated && rate < e.cfg.Threshold:
		e.elevated = false
		return Transition{
			Kind:      KindTrafficRecovered,
			Rate:      rate,
			Threshold: e.cfg.Threshold,
			At:        now,
			Message:   fmt.Sprintf(recoveryFormat, ts, rate),
		}, true
	}
	return Transition{}, false
}

// CheckElevatedRequests evaluates all traffic over the configured window and
// returns the alert or recovery line, or "" when the state did not change.
func (e *Engine) CheckElevatedRequests(now time.Time) string {
	return e.CheckElevatedRequestsWindow(now, e.cfg.WindowSeconds, nil)
}

// CheckElevatedRequestsWindow is CheckElevatedRequests over an explicit window
// and series subset.
func (e *Engine) CheckElevatedRequestsWindow(now time.Time, windowSeconds int, filters []string) string {
	t, ok := e.Evaluate(now, windowSeconds, filters)
	if !ok {
		return ""
	}
	return t.Message
}

// FindHighestCount names the candidate with the most events in the window.
// Candidates are the given names, or every known section when names is
// empty. Candidates match series by substring. Ties keep the earliest
// candidate.
func (e *Engine) FindHighestCount(now time.Time, windowSeconds int, names []string) string {
	format := metricHighest
	candidates := names
	if len(candidates) == 0 {
		format = sectionHighest
		candidates = e.store.Sections()
	}
	if len(candidates) == 0 {
		return fmt.Sprintf(noTrafficFormat, windowSeconds)
	}

	window := seconds(windowSeconds)
	best, bestCount := "", int64(-1)
	for _, name := range candidates {
		if count := e.store.TotalCountSince(now, window, name); count > bestCount {
			best, bestCount = name, count
		}
	}
	return fmt.Sprintf(format, windowSeconds, best, bestCount)
}

// FindInterestingMetricsSummaries returns one line per name fragment with a
// non-zero count in the window. Fragments come from names, falling back to
// the configured interesting metrics. With neither, the only line returned
// is an error line.
func (e *Engine) FindInterestingMetricsSummaries(now time.Time, windowSeconds int, names []string) []string {
	scope := names
	if len(scope) == 0 {
		scope = e.cfg.InterestingMetrics
	}
	if len(scope) == 0 {
		return []string{noInterestingError}
	}

	window := seconds(windowSeconds)
	lines := make([]string, 0, len(scope))
	for _, name := range scope {
		if count := e.store.TotalCountSince(now, window, name); count > 0 {
			lines = append(lines, fmt.Sprintf(interestingFormat, name, windowSeconds, count))
		}
	}
	return lines
}

// ProvideSummary returns the summary block for the window ending at now: a
// header, the highest-count line, and the interesting-metric lines. names
// scopes both the highest-count line and the interesting lines. With no
// names and no configured interesting metrics the block is the error line
// alone. A windowSeconds below one uses the configured summary window.
func (e *Engine) ProvideSummary(now time.Time, windowSeconds int, names []string) []string {
	if len(names) == 0 && len(e.cfg.InterestingMetrics) == 0 {
		return []string{noInterestingError}
	}
	if windowSeconds < 1 {
		windowSeconds = e.cfg.SummaryWindowSeconds
	}
	from := now.Add(-seconds(windowSeconds))
	lines := []string{
		fmt.Sprintf(summaryHeader, FormatTimestamp(from), FormatTimestamp(now)),
		e.FindHighestCount(now, windowSeconds, names),
	}
	return append(lines, e.FindInterestingMetricsSummaries(now, windowSeconds, names)...)
}

// FormatTimestamp renders t in UTC for output lines.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
