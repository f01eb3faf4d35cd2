//go:build integration

package datastore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/logwatch/internal/datastore"
	"github.com/tphakala/logwatch/internal/datastore/entities"
	"github.com/tphakala/logwatch/internal/datastore/repository"
	"github.com/tphakala/logwatch/internal/logger"
	"github.com/tphakala/logwatch/internal/testutil/containers"
)

// MySQL test container shared across all tests in this package
var (
	mysqlContainer *containers.MySQLContainer
	manager        *datastore.Manager
)

// TestMain starts MySQL once and opens the history database against it.
func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	mysqlContainer, err = containers.NewMySQLContainer(ctx, nil)
	if err != nil {
		panic("failed to create MySQL container: " + err.Error())
	}

	manager, err = datastore.Open(datastore.DriverMySQL, mysqlContainer.GetDSN(), logger.Discard())
	if err != nil {
		_ = mysqlContainer.Terminate(context.Background())
		panic("failed to open history database: " + err.Error())
	}

	code := m.Run()

	_ = manager.Close()
	if err := mysqlContainer.Terminate(context.Background()); err != nil {
		panic("failed to terminate MySQL container: " + err.Error())
	}

	os.Exit(code)
}

// resetDatabase truncates the history table to ensure test isolation
func resetDatabase(t *testing.T) {
	t.Helper()
	require.NoError(t, mysqlContainer.Reset(t.Context(), []string{"alert_history"}), "failed to reset database")
}

func TestMySQL_HistoryRoundTrip(t *testing.T) {
	resetDatabase(t)

	ctx := t.Context()
	repo := manager.HistoryRepository()

	firedAt := time.Date(2019, 2, 7, 21, 11, 3, 0, time.UTC)
	require.NoError(t, repo.SaveHistory(ctx, &entities.AlertHistory{
		EventID:   "3c1f3c1e-5a0b-4a57-9d5c-6b1f0d1f2a10",
		Kind:      "traffic.elevated",
		Message:   "High traffic generated an alert - hits = 12.50, triggered at 2019-02-07 21:11:03",
		Rate:      12.5,
		Threshold: 10,
		FiredAt:   firedAt,
	}))

	got, err := repo.GetHistoryByEventID(ctx, "3c1f3c1e-5a0b-4a57-9d5c-6b1f0d1f2a10")
	require.NoError(t, err)
	assert.Equal(t, "traffic.elevated", got.Kind)
	assert.InDelta(t, 12.5, got.Rate, 0.001)
	assert.True(t, firedAt.Equal(got.FiredAt), "fired_at should survive the round trip")
}

func TestMySQL_HistoryPaginationAndPrune(t *testing.T) {
	resetDatabase(t)

	ctx := t.Context()
	repo := manager.HistoryRepository()

	now := time.Now().UTC().Truncate(time.Second)
	for i := range 6 {
		require.NoError(t, repo.SaveHistory(ctx, &entities.AlertHistory{
			EventID:   fmt.Sprintf("event-%d", i),
			Kind:      "traffic.summary",
			FiredAt:   now.Add(time.Duration(-i) * 24 * time.Hour),
			CreatedAt: now.Add(time.Duration(-i) * 24 * time.Hour),
		}))
	}

	items, total, err := repo.ListHistory(ctx, repository.AlertHistoryFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
	require.Len(t, items, 2)
	assert.Equal(t, "event-2", items[0].EventID)

	deleted, err := manager.Prune(ctx, 72*time.Hour+time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}
