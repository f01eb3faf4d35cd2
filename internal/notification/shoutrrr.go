// Package notification delivers alert events to chat and push services
// through shoutrrr service URLs (ntfy://, slack://, telegram://, generic://...).
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/tphakala/logwatch/internal/alerting"
	"github.com/tphakala/logwatch/internal/observability"
)

// sinkName labels notifier failures in the sink_failures_total metric.
const sinkName = "notify"

var (
	// ErrInvalidURL is returned for service URLs shoutrrr cannot route.
	ErrInvalidURL = errors.New("invalid notification url")
	// ErrSendFailed wraps the errors shoutrrr reports for a delivery.
	ErrSendFailed = errors.New("notification send failed")
)

// sender is the part of shoutrrr's router used here.
type sender interface {
	Send(message string, params *types.Params) []error
}

// ShoutrrrNotifier is an alerting.Notifier for one shoutrrr service URL.
type ShoutrrrNotifier struct {
	name    string
	sender  sender
	metrics *observability.Metrics
}

var _ alerting.Notifier = (*ShoutrrrNotifier)(nil)

// NewShoutrrrNotifier validates rawURL and returns a notifier for it.
// m may be nil.
func NewShoutrrrNotifier(rawURL string, m *observability.Metrics) (*ShoutrrrNotifier, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, redact(rawURL))
	}
	router, err := shoutrrr.CreateSender(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidURL, displayName(u), err)
	}
	return &ShoutrrrNotifier{name: displayName(u), sender: router, metrics: m}, nil
}

// Name identifies the target without credentials, e.g. "ntfy://ntfy.sh".
func (n *ShoutrrrNotifier) Name() string {
	return n.name
}

// Notify sends message with title. Shoutrrr has no context support, so a
// cancelled ctx abandons the send rather than aborting it.
func (n *ShoutrrrNotifier) Notify(ctx context.Context, title, message string) error {
	params := types.Params{"title": title}
	done := make(chan []error, 1)
	go func() {
		done <- n.sender.Send(message, &params)
	}()

	select {
	case errs := <-done:
		if err := errors.Join(errs...); err != nil {
			n.metrics.SinkFailed(sinkName)
			return fmt.Errorf("%w: %s: %w", ErrSendFailed, n.name, err)
		}
		return nil
	case <-ctx.Done():
		n.metrics.SinkFailed(sinkName)
		return fmt.Errorf("%w: %s: %w", ErrSendFailed, n.name, ctx.Err())
	}
}

// Routes builds one dispatcher route per URL. Transitions are always
// routed; summaries only when includeSummaries is set.
func Routes(urls []string, includeSummaries bool, m *observability.Metrics) ([]alerting.Route, error) {
	kinds := []string{alerting.KindTrafficElevated, alerting.KindTrafficRecovered}
	if includeSummaries {
		kinds = append(kinds, alerting.KindTrafficSummary)
	}

	routes := make([]alerting.Route, 0, len(urls))
	for _, raw := range urls {
		n, err := NewShoutrrrNotifier(raw, m)
		if err != nil {
			return nil, err
		}
		routes = append(routes, alerting.Route{Notifier: n, Kinds: kinds})
	}
	return routes, nil
}

func displayName(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// redact keeps only the scheme of URLs that failed to parse.
func redact(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		return u.Scheme + "://..."
	}
	return "<unparsable>"
}
