package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/tphakala/logwatch/internal/alerting"
	"github.com/tphakala/logwatch/internal/api"
	"github.com/tphakala/logwatch/internal/conf"
	"github.com/tphakala/logwatch/internal/datastore"
	"github.com/tphakala/logwatch/internal/datastore/repository"
	"github.com/tphakala/logwatch/internal/logger"
	"github.com/tphakala/logwatch/internal/metrics"
	"github.com/tphakala/logwatch/internal/monitor"
	"github.com/tphakala/logwatch/internal/mqtt"
	"github.com/tphakala/logwatch/internal/notification"
	"github.com/tphakala/logwatch/internal/observability"
	"golang.org/x/sync/errgroup"
)

// flushTimeout bounds how long error reports may delay exit.
const flushTimeout = 2 * time.Second

// run loads settings, wires the monitor and its sinks, and processes input
// until it ends or ctx is cancelled.
func (a *app) run(ctx context.Context, input string) (err error) {
	settings, err := conf.Load(a.v, a.configFile)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(settings.Log.Level)
	if err != nil {
		return err
	}
	log := logger.NewSlogLoggerWithFormat(a.stderr, level, settings.Log.Format, nil)

	if settings.Sentry.DSN != "" {
		if sentryErr := initSentry(settings.Sentry.DSN); sentryErr != nil {
			log.Warn("error reporting disabled", logger.Error(sentryErr))
		} else {
			defer func() {
				if err != nil {
					sentry.CaptureException(err)
				}
				sentry.Flush(flushTimeout)
			}()
		}
	}

	in, closeIn, err := a.openInput(input)
	if err != nil {
		return err
	}
	defer closeIn()

	out, closeOut, err := a.openOutput()
	if err != nil {
		return err
	}
	defer closeOut()

	m := observability.NewMetrics()
	store, err := metrics.NewCounterStore(settings.Store.MaxSeriesLength)
	if err != nil {
		return err
	}

	var history repository.AlertHistoryRepository
	if settings.History.DSN != "" {
		db, err := datastore.Open(settings.History.Driver, settings.History.DSN, log)
		if err != nil {
			return fmt.Errorf("failed to open alert history: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn("failed to close alert history", logger.Error(err))
			}
		}()
		if _, err := db.Prune(ctx, settings.History.Retention.Std()); err != nil {
			log.Warn("failed to prune alert history", logger.Error(err))
		}
		history = db.HistoryRepository()
	}

	// The MQTT client is connected before the alerting system starts so
	// that it is disconnected only after the bus has drained.
	var publisher *mqtt.Publisher
	if settings.MQTT.Broker != "" {
		client, err := mqtt.NewClient(mqtt.Config{
			Broker:   settings.MQTT.Broker,
			ClientID: settings.MQTT.ClientID,
			Username: settings.MQTT.Username,
			Password: settings.MQTT.Password,
		}, m, log)
		if err != nil {
			return err
		}
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to mqtt broker: %w", err)
		}
		defer client.Disconnect()
		publisher = mqtt.NewPublisher(client, settings.MQTT.Topic, m, log)
	}

	routes, err := notification.Routes(settings.Notify.URLs, settings.Notify.Summaries, m)
	if err != nil {
		return err
	}

	system, err := alerting.Initialize(store, alerting.Options{
		Engine:           engineConfig(settings),
		Routes:           routes,
		History:          history,
		HistoryRetention: settings.History.Retention.Std(),
	}, log)
	if err != nil {
		return err
	}
	defer system.Stop()
	if publisher != nil {
		system.Bus.Subscribe(publisher.Handle)
	}

	mon := monitor.New(store, system.Engine, monitor.Options{
		SummaryInterval: settings.Summary.Interval.Std(),
		Output:          out,
		Bus:             system.Bus,
		Metrics:         m,
	}, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if settings.HTTP.Listen != "" {
		srv := api.NewServer(api.Dependencies{Status: mon, History: history, Metrics: m}, log)
		system.Bus.Subscribe(srv.Hub().Broadcast)
		g.Go(func() error {
			err := srv.ListenAndServe(gctx, settings.HTTP.Listen)
			if err != nil && gctx.Err() != nil {
				// input ended before the listener came up
				return nil
			}
			return err
		})
	}

	log.Info("logwatch started",
		logger.String("input", displayInput(input)),
		logger.Float64("threshold", settings.Alert.Threshold),
		logger.Duration("alert_window", settings.Alert.Window.Std()),
		logger.Duration("summary_interval", settings.Summary.Interval.Std()))

	g.Go(func() error {
		if err := runMonitor(gctx, mon, in); err != nil {
			return err
		}
		status := mon.Status()
		log.Info("input finished",
			logger.Uint64("records_ingested", status.RecordsIngested),
			logger.Uint64("records_dropped", status.RecordsDropped))
		if !a.keepServing || settings.HTTP.Listen == "" {
			cancel()
		}
		return nil
	})

	return g.Wait()
}

// runMonitor returns when the monitor finishes or ctx is cancelled. A read
// blocked on a terminal or pipe cannot be interrupted, so on cancellation
// the monitor goroutine is left to exit with the process.
func runMonitor(ctx context.Context, mon *monitor.Monitor, in io.Reader) error {
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx, in) }()

	select {
	case err := <-done:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-ctx.Done():
		return nil
	}
}

func engineConfig(s *conf.Settings) alerting.EngineConfig {
	return alerting.EngineConfig{
		Threshold:            s.Alert.Threshold,
		WindowSeconds:        s.Alert.Window.Seconds(),
		SummaryWindowSeconds: s.Summary.Window.Seconds(),
		InterestingMetrics:   s.Summary.Interesting,
	}
}

func initSentry(dsn string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          "logwatch@" + Version,
		AttachStacktrace: true,
	})
}

// openInput returns the file named by input, or stdin when input is empty
// or "-".
func (a *app) openInput(input string) (io.Reader, func(), error) {
	if input == "" || input == "-" {
		return a.stdin, func() {}, nil
	}
	f, err := os.Open(input)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// openOutput returns the --output file, truncated, or stdout.
func (a *app) openOutput() (io.Writer, func(), error) {
	if a.output == "" {
		return a.stdout, func() {}, nil
	}
	f, err := os.Create(a.output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func displayInput(input string) string {
	if input == "" || input == "-" {
		return "stdin"
	}
	return input
}
