package alerting

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/logwatch/internal/logger"
)

// notifyTimeout bounds a single notifier delivery.
const notifyTimeout = 10 * time.Second

// Notifier delivers a rendered alert to an external target.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, title, message string) error
}

// Route binds a notifier to the event kinds it receives and the templates
// used to render them. Empty Kinds means transitions only.
type Route struct {
	Notifier        Notifier
	Kinds           []string
	TitleTemplate   string
	MessageTemplate string
}

func (r *Route) accepts(kind string) bool {
	if len(r.Kinds) == 0 {
		return kind == KindTrafficElevated || kind == KindTrafficRecovered
	}
	return slices.Contains(r.Kinds, kind)
}

// ActionDispatcher routes alert events to the configured notifiers.
type ActionDispatcher struct {
	routes []Route
	log    logger.Logger
}

// NewActionDispatcher creates a new ActionDispatcher.
func NewActionDispatcher(routes []Route, log logger.Logger) *ActionDispatcher {
	return &ActionDispatcher{
		routes: slices.Clone(routes),
		log:    log,
	}
}

// Dispatch implements AlertEventHandler.
func (d *ActionDispatcher) Dispatch(event *AlertEvent) {
	for i := range d.routes {
		route := &d.routes[i]
		if route.Notifier == nil || !route.accepts(event.Kind) {
			continue
		}
		title := renderTemplate(route.TitleTemplate, event, defaultTitle)
		message := renderTemplate(route.MessageTemplate, event, defaultMessage)
		d.deliver(route.Notifier, title, message, event)
	}
}

func (d *ActionDispatcher) deliver(n Notifier, title, message string, event *AlertEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := n.Notify(ctx, title, message); err != nil {
		d.log.Error("failed to deliver alert notification",
			logger.String("notifier", n.Name()),
			logger.String("kind", event.Kind),
			logger.String("event_id", event.ID),
			logger.Error(err))
		return
	}
	d.log.Debug("alert notification delivered",
		logger.String("notifier", n.Name()),
		logger.String("kind", event.Kind))
}

// renderTemplate substitutes template variables in the title/message strings.
// Falls back to the default renderer if the template is empty.
func renderTemplate(tmpl string, event *AlertEvent, fallback func(*AlertEvent) string) string {
	if tmpl == "" {
		return fallback(event)
	}
	return strings.NewReplacer(
		VarKind, event.Kind,
		VarMessage, defaultMessage(event),
		VarRate, strconv.FormatFloat(event.Rate, 'f', 2, 64),
		VarThreshold, strconv.FormatFloat(event.Threshold, 'f', 2, 64),
		VarTime, FormatTimestamp(event.Timestamp),
	).Replace(tmpl)
}

func defaultTitle(event *AlertEvent) string {
	switch event.Kind {
	case KindTrafficElevated:
		return "logwatch: high traffic"
	case KindTrafficRecovered:
		return "logwatch: traffic recovered"
	case KindTrafficSummary:
		return "logwatch: traffic summary"
	default:
		return "logwatch: " + event.Kind
	}
}

func defaultMessage(event *AlertEvent) string {
	if len(event.Lines) > 0 {
		return strings.Join(event.Lines, "\n")
	}
	return event.Message
}
