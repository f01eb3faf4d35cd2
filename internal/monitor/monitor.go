package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/logwatch/internal/alerting"
	"github.com/tphakala/logwatch/internal/logger"
	"github.com/tphakala/logwatch/internal/metrics"
	"github.com/tphakala/logwatch/internal/observability"
	"github.com/tphakala/logwatch/internal/parser"
	"golang.org/x/time/rate"
)

// DefaultSummaryInterval is the data-time spacing between summaries.
const DefaultSummaryInterval = 10 * time.Second

const (
	dropWarnFirst    = 10
	dropWarnInterval = 10 * time.Second
)

// Publisher receives alert events. *alerting.AlertEventBus satisfies it.
type Publisher interface {
	Publish(event *alerting.AlertEvent) bool
}

// Options configures a Monitor. Zero values disable the optional parts.
type Options struct {
	// SummaryInterval is how much data time passes between summaries.
	SummaryInterval time.Duration
	// Output receives alert and summary lines.
	Output io.Writer
	// Bus receives an event per transition and per summary.
	Bus     Publisher
	Metrics *observability.Metrics
}

// Status is a point-in-time snapshot for readers outside the ingest goroutine.
type Status struct {
	DataTime        time.Time `json:"data_time"`
	Elevated        bool      `json:"elevated"`
	Rate            float64   `json:"rate"`
	Threshold       float64   `json:"threshold"`
	WindowSeconds   int       `json:"window_seconds"`
	Series          int       `json:"series"`
	Sections        []string  `json:"sections"`
	RecordsIngested uint64    `json:"records_ingested"`
	RecordsDropped  uint64    `json:"records_dropped"`
	LastAlert       string    `json:"last_alert,omitempty"`
	LastSummary     []string  `json:"last_summary,omitempty"`
}

// Monitor owns the counter store and engine and is their only caller. Run
// and Process must be called from a single goroutine; Status may be called
// from any.
type Monitor struct {
	store  *metrics.CounterStore
	engine *alerting.Engine
	opts   Options
	log    logger.Logger

	clock       Clock
	lastSummary time.Time
	dropWarn    rate.Sometimes

	mu     sync.RWMutex
	status Status
}

// New creates a monitor over store and engine.
func New(store *metrics.CounterStore, engine *alerting.Engine, opts Options, log logger.Logger) *Monitor {
	if opts.SummaryInterval <= 0 {
		opts.SummaryInterval = DefaultSummaryInterval
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	cfg := engine.Config()
	return &Monitor{
		store:    store,
		engine:   engine,
		opts:     opts,
		log:      log,
		dropWarn: rate.Sometimes{First: dropWarnFirst, Interval: dropWarnInterval},
		status: Status{
			Threshold:     cfg.Threshold,
			WindowSeconds: cfg.WindowSeconds,
		},
	}
}

// Run reads a CSV access log from r until EOF or ctx is cancelled.
// Unparsable rows are logged, counted and skipped.
func (m *Monitor) Run(ctx context.Context, r io.Reader) error {
	reader, err := parser.NewReader(r)
	if err != nil {
		return err
	}
	p := reader.Parser()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if errors.Is(err, parser.ErrMalformedLine) {
				m.drop(row.Line, err)
				continue
			}
			return fmt.Errorf("failed to read log: %w", err)
		}

		name, rec, err := p.ParseLogLine(row.Fields)
		if err != nil {
			m.drop(row.Line, err)
			continue
		}
		if err := m.Process(name, rec); err != nil {
			return err
		}
	}
}

// Process ingests one record and, when it moves the data clock forward,
// evaluates alerts and the summary cadence.
func (m *Monitor) Process(name string, rec metrics.Record) error {
	m.store.Ingest(name, rec)
	m.opts.Metrics.RecordIngested()
	m.mu.Lock()
	m.status.RecordsIngested++
	m.mu.Unlock()

	if !m.clock.Observe(rec.Timestamp) {
		return nil
	}
	now, _ := m.clock.Now()

	var alertLine string
	if t, ok := m.engine.Evaluate(now, m.engine.Config().WindowSeconds, nil); ok {
		alertLine = t.Message
		if err := m.writeLines(t.Message); err != nil {
			return err
		}
		m.publish(alerting.NewTransitionEvent(t))
		m.opts.Metrics.AlertTransition(t.Kind, m.engine.Elevated())
		m.log.Info("traffic alert state changed",
			logger.String("kind", t.Kind),
			logger.Float64("rate", t.Rate),
			logger.Float64("threshold", t.Threshold),
			logger.Time("at", now))
	}

	var summary []string
	if m.summaryDue(now) {
		summary = m.engine.ProvideSummary(now, 0, nil)
		if err := m.writeLines(summary...); err != nil {
			return err
		}
		m.publish(alerting.NewSummaryEvent(summary, now))
		m.opts.Metrics.SummaryEmitted()
	}

	m.refreshStatus(now, alertLine, summary)
	return nil
}

// summaryDue starts the cadence at the first observed timestamp and fires
// once at least SummaryInterval of data time has passed since the last
// summary.
func (m *Monitor) summaryDue(now time.Time) bool {
	if m.lastSummary.IsZero() {
		m.lastSummary = now
		return false
	}
	if now.Sub(m.lastSummary) < m.opts.SummaryInterval {
		return false
	}
	m.lastSummary = now
	return true
}

func (m *Monitor) writeLines(lines ...string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(m.opts.Output, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func (m *Monitor) publish(event *alerting.AlertEvent) {
	if m.opts.Bus == nil {
		return
	}
	if !m.opts.Bus.Publish(event) {
		m.opts.Metrics.EventDropped()
		m.log.Warn("alert event dropped",
			logger.String("kind", event.Kind),
			logger.String("event_id", event.ID))
	}
}

func (m *Monitor) drop(line int, err error) {
	reason := observability.ReasonMalformed
	if errors.Is(err, parser.ErrInvalidTimestamp) {
		reason = observability.ReasonInvalidTimestamp
	}
	m.opts.Metrics.RecordDropped(reason)

	m.mu.Lock()
	m.status.RecordsDropped++
	m.mu.Unlock()

	m.dropWarn.Do(func() {
		m.log.Warn("skipping unparsable log line",
			logger.Int("line", line),
			logger.String("reason", reason),
			logger.Error(err))
	})
}

func (m *Monitor) refreshStatus(now time.Time, alertLine string, summary []string) {
	reqRate := m.engine.AverageRequestRate(now, m.status.WindowSeconds, nil)
	series := m.store.Len()
	sections := m.store.Sections()
	m.opts.Metrics.ObserveState(reqRate, series, now.Unix())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.DataTime = now
	m.status.Elevated = m.engine.Elevated()
	m.status.Rate = reqRate
	m.status.Series = series
	m.status.Sections = sections
	if alertLine != "" {
		m.status.LastAlert = alertLine
	}
	if summary != nil {
		m.status.LastSummary = summary
	}
}

// Status returns a copy of the latest snapshot.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.status
	s.Sections = slices.Clone(s.Sections)
	s.LastSummary = slices.Clone(s.LastSummary)
	return s
}
