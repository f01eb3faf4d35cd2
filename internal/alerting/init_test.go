package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_WiresSinks(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	repo := &mockHistoryRepo{}
	notifier := &mockNotifier{name: "mock"}

	sys, err := Initialize(s, Options{
		Engine:           EngineConfig{Threshold: 1, WindowSeconds: 1, SummaryWindowSeconds: 10},
		Routes:           []Route{{Notifier: notifier}},
		History:          repo,
		HistoryRetention: 24 * time.Hour,
	}, testLogger())
	require.NoError(t, err)
	require.NotNil(t, sys.History)

	ingest(s, "/api", "200", at(5))
	tr, ok := sys.Engine.Evaluate(at(5), 1, nil)
	require.True(t, ok)
	sys.Bus.Publish(NewTransitionEvent(tr))
	sys.Bus.Publish(NewSummaryEvent(sys.Engine.ProvideSummary(at(5), 0, nil), at(5)))

	sys.Stop()

	assert.Equal(t, 2, repo.Len(), "history journals transitions and summaries")
	calls := notifier.Calls()
	require.Len(t, calls, 1, "default route only takes transitions")
	assert.Equal(t, "logwatch: high traffic", calls[0].title)
}

func TestInitialize_WithoutHistory(t *testing.T) {
	t.Parallel()

	sys, err := Initialize(newStore(t), Options{Engine: DefaultEngineConfig()}, testLogger())
	require.NoError(t, err)
	defer sys.Stop()

	assert.Nil(t, sys.History)
	assert.False(t, sys.Engine.Elevated())
}

func TestInitialize_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := Initialize(newStore(t), Options{}, testLogger())
	require.ErrorIs(t, err, ErrInvalidConfig)
}
