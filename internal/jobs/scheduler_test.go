package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMiningTickRegisteredOnce(t *testing.T) {
	s := NewScheduler(30 * time.Second)

	require.NoError(t, s.StartMining(func() {}))
	require.NoError(t, s.StartMining(func() {}))
	require.True(t, s.MiningActive())
	require.Len(t, s.cron.Entries(), 1)

	s.StopMining()
	s.StopMining()
	require.False(t, s.MiningActive())
	require.Empty(t, s.cron.Entries())
}

func TestScheduleRefresh(t *testing.T) {
	s := NewScheduler(30 * time.Second)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.ScheduleRefresh(context.Background(), "@every 5m", noop))
	require.Error(t, s.ScheduleRefresh(context.Background(), "not a schedule", noop))
	require.Len(t, s.cron.Entries(), 1)
}

func TestMiningTickFires(t *testing.T) {
	s := NewScheduler(time.Second)
	s.Start()
	defer s.Stop()

	ticks := make(chan struct{}, 4)
	require.NoError(t, s.StartMining(func() { ticks <- struct{}{} }))

	select {
	case <-ticks:
	case <-time.After(3 * time.Second):
		t.Fatal("тик майнинга не сработал")
	}
}
