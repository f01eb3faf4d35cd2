package alerting

import (
	"time"

	"github.com/tphakala/logwatch/internal/datastore/repository"
	"github.com/tphakala/logwatch/internal/logger"
	"github.com/tphakala/logwatch/internal/metrics"
)

// Options configures Initialize.
type Options struct {
	Engine EngineConfig
	Routes []Route
	// History is optional; when nil no journal is kept.
	History          repository.AlertHistoryRepository
	HistoryRetention time.Duration
}

// System is the wired alerting stack: the engine plus the bus its events
// fan out on.
type System struct {
	Engine     *Engine
	Bus        *AlertEventBus
	Dispatcher *ActionDispatcher
	History    *HistoryRecorder
}

// Initialize creates the engine, starts the event bus, and subscribes the
// action dispatcher and, when a repository is given, the history recorder.
// Further sinks may Subscribe to the returned bus.
func Initialize(store *metrics.CounterStore, opts Options, log logger.Logger) (*System, error) {
	engine, err := NewEngine(store, opts.Engine)
	if err != nil {
		return nil, err
	}

	bus := NewAlertEventBus()
	dispatcher := NewActionDispatcher(opts.Routes, log)
	if len(opts.Routes) > 0 {
		bus.Subscribe(dispatcher.Dispatch)
	}

	var history *HistoryRecorder
	if opts.History != nil {
		history = NewHistoryRecorder(opts.History, log)
		bus.Subscribe(history.Record)
		history.StartCleanup(opts.HistoryRetention)
	}

	cfg := engine.Config()
	log.Info("alerting engine initialized",
		logger.Float64("threshold", cfg.Threshold),
		logger.Int("window_seconds", cfg.WindowSeconds),
		logger.Int("summary_window_seconds", cfg.SummaryWindowSeconds),
		logger.Int("routes", len(opts.Routes)),
		logger.Bool("history", history != nil))

	return &System{
		Engine:     engine,
		Bus:        bus,
		Dispatcher: dispatcher,
		History:    history,
	}, nil
}

// Stop drains the bus and stops background history cleanup.
func (s *System) Stop() {
	s.Bus.Stop()
	if s.History != nil {
		s.History.Stop()
	}
}
