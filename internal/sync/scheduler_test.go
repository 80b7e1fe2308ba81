package sync

import (
	"context"
	"testing"
	"time"

	"github.com/biosync/biosync/internal/models"
	"github.com/stretchr/testify/require"
)

func TestSchedulerStartStopLifecycle(t *testing.T) {
	f := newFixture(t, newFakeProvider().withAllResources())
	s := NewScheduler(f.orchestrator, time.Hour, f.orchestrator.metrics, quietLogger())

	require.False(t, s.IsRunning())
	require.True(t, s.NextRun().IsZero())

	require.NoError(t, s.Start(context.Background()))
	require.True(t, s.IsRunning())
	require.False(t, s.NextRun().IsZero())
	require.Error(t, s.Start(context.Background()))

	require.NoError(t, s.Stop())
	require.False(t, s.IsRunning())
	require.NoError(t, s.Stop())
}

func TestSchedulerTickRunsOneDaySync(t *testing.T) {
	f := newFixture(t, newFakeProvider().withAllResources())
	s := NewScheduler(f.orchestrator, 20*time.Millisecond, f.orchestrator.metrics, quietLogger())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		date := time.Now().UTC().Format("2006-01-02")
		count, err := f.store.CountForDate(models.ResourceSummary, date)
		return err == nil && count == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerDefaultsInterval(t *testing.T) {
	f := newFixture(t, newFakeProvider())
	s := NewScheduler(f.orchestrator, 0, f.orchestrator.metrics, quietLogger())
	require.Equal(t, 15*time.Minute, s.interval)
}
