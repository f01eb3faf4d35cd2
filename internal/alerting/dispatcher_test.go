package alerting

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/logwatch/internal/logger"
)

type notification struct{ title, message string }

type mockNotifier struct {
	name  string
	err   error
	mu    sync.Mutex
	calls []notification
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Notify(_ context.Context, title, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, notification{title, message})
	return m.err
}

func (m *mockNotifier) Calls() []notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification(nil), m.calls...)
}

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func elevatedEvent() *AlertEvent {
	return &AlertEvent{
		ID:        "evt-1",
		Kind:      KindTrafficElevated,
		Message:   "High traffic generated an alert - hits = 12.50, triggered at 2019-02-07 16:18:03",
		Rate:      12.5,
		Threshold: 10,
		Timestamp: at(3),
	}
}

func TestDispatcher_DefaultTemplates(t *testing.T) {
	t.Parallel()

	mock := &mockNotifier{name: "mock"}
	d := NewActionDispatcher([]Route{{Notifier: mock}}, testLogger())

	d.Dispatch(elevatedEvent())

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "logwatch: high traffic", calls[0].title)
	assert.Equal(t, elevatedEvent().Message, calls[0].message)
}

func TestDispatcher_CustomTemplates(t *testing.T) {
	t.Parallel()

	mock := &mockNotifier{name: "mock"}
	d := NewActionDispatcher([]Route{{
		Notifier:        mock,
		TitleTemplate:   "[{{kind}}] {{rate}}/{{threshold}}",
		MessageTemplate: "{{time}}: {{message}} {{unknown}}",
	}}, testLogger())

	d.Dispatch(elevatedEvent())

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "[traffic.elevated] 12.50/10.00", calls[0].title)
	assert.Equal(t, "2019-02-07 16:18:03: "+elevatedEvent().Message+" {{unknown}}", calls[0].message)
}

func TestDispatcher_RoutesByKind(t *testing.T) {
	t.Parallel()

	transitions := &mockNotifier{name: "transitions"}
	summaries := &mockNotifier{name: "summaries"}
	d := NewActionDispatcher([]Route{
		{Notifier: transitions},
		{Notifier: summaries, Kinds: []string{KindTrafficSummary}},
	}, testLogger())

	d.Dispatch(elevatedEvent())
	d.Dispatch(&AlertEvent{Kind: KindTrafficRecovered, Message: "recovered", Timestamp: at(9)})
	d.Dispatch(NewSummaryEvent([]string{"Summary for a to b", "Section with the most hits in the last 10 seconds: /api (2)"}, at(10)))

	assert.Len(t, transitions.Calls(), 2, "default route takes transitions only")
	require.Len(t, summaries.Calls(), 1)
	assert.Equal(t, "logwatch: traffic summary", summaries.Calls()[0].title)
	assert.Equal(t, "Summary for a to b\nSection with the most hits in the last 10 seconds: /api (2)", summaries.Calls()[0].message)
}

func TestDispatcher_NotifierErrorDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	failing := &mockNotifier{name: "failing", err: errors.New("smtp down")}
	ok := &mockNotifier{name: "ok"}
	d := NewActionDispatcher([]Route{{Notifier: failing}, {Notifier: ok}, {Notifier: nil}}, testLogger())

	d.Dispatch(elevatedEvent())

	assert.Len(t, failing.Calls(), 1)
	assert.Len(t, ok.Calls(), 1)
}

func TestDispatcher_UnknownKindTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "logwatch: custom", defaultTitle(&AlertEvent{Kind: "custom"}))
}
