package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YeabtsegaM/server-sub001/domain/entities"
	"github.com/YeabtsegaM/server-sub001/domain/events"
	"github.com/YeabtsegaM/server-sub001/domain/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSchedulerFixture(t *testing.T) (*DrawScheduler, *fakeUnitOfWorkFactory, *services.NumberPoolRegistry) {
	t.Helper()
	factory := newFakeUnitOfWorkFactory()
	pools := services.NewNumberPoolRegistry()
	scheduler := NewDrawScheduler(factory, pools, "shop-1")
	return scheduler, factory, pools
}

func seedSession(t *testing.T, factory *fakeUnitOfWorkFactory, sessionID, cashierID string, status entities.SessionStatus) {
	t.Helper()
	err := factory.uow.sessionRepo.Create(context.Background(), &entities.GameSession{
		ID:        sessionID,
		ShopID:    "shop-1",
		CashierID: cashierID,
		Status:    status,
	})
	require.NoError(t, err)
}

func TestSchedulerStartRequiresInitialization(t *testing.T) {
	scheduler, factory, _ := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)

	assert.False(t, scheduler.Start(context.Background(), "cashier-1", "session-1"))
}

func TestSchedulerStartRequiresMatchingSession(t *testing.T) {
	scheduler, factory, _ := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)
	scheduler.Initialize("cashier-1", "session-other", DrawConfig{Interval: time.Minute})

	assert.False(t, scheduler.Start(context.Background(), "cashier-1", "session-1"))
}

func TestSchedulerStartRequiresActiveSession(t *testing.T) {
	scheduler, factory, pools := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusWaiting)
	pools.Initialize("session-1")
	scheduler.Initialize("cashier-1", "session-1", DrawConfig{Interval: time.Minute})

	assert.False(t, scheduler.Start(context.Background(), "cashier-1", "session-1"))
}

func TestSchedulerStartIsNotReentrant(t *testing.T) {
	scheduler, factory, pools := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)
	pools.Initialize("session-1")
	scheduler.Initialize("cashier-1", "session-1", DrawConfig{Interval: time.Minute})

	require.True(t, scheduler.Start(context.Background(), "cashier-1", "session-1"))
	defer scheduler.Stop("cashier-1")

	assert.False(t, scheduler.Start(context.Background(), "cashier-1", "session-1"))
}

func TestSchedulerRunsToExhaustion(t *testing.T) {
	scheduler, factory, pools := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)
	pools.Initialize("session-1")

	done := make(chan struct{})
	scheduler.OnComplete(func(cashierID, sessionID string) {
		assert.Equal(t, "cashier-1", cashierID)
		assert.Equal(t, "session-1", sessionID)
		close(done)
	})

	// Compressed interval: a full 75-draw game runs in well under a second
	scheduler.Initialize("cashier-1", "session-1", DrawConfig{Interval: time.Millisecond})
	require.True(t, scheduler.Start(context.Background(), "cashier-1", "session-1"))

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("scheduler did not exhaust the pool in time")
	}

	drawn, err := factory.uow.sessionRepo.GetDrawnNumbers(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Len(t, drawn, services.PoolSize)

	seen := make(map[int]bool, len(drawn))
	for _, n := range drawn {
		assert.False(t, seen[n], "number %d persisted twice", n)
		seen[n] = true
	}

	stats, ok := scheduler.Stats("cashier-1")
	require.True(t, ok)
	assert.False(t, stats.IsActive)
	assert.Equal(t, services.PoolSize, stats.SuccessfulDraws)
	assert.InDelta(t, 100.0, stats.PerformanceScore, 0.001)

	assert.Equal(t, 1, factory.uow.bus.CountOf(events.EventTypeGameCompleted))
	assert.Equal(t, services.PoolSize, factory.uow.bus.CountOf(events.EventTypeNumberDrawn))
}

func TestSchedulerTickSingleFlight(t *testing.T) {
	scheduler, factory, pools := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)
	pools.Initialize("session-1")
	scheduler.Initialize("cashier-1", "session-1", DrawConfig{Interval: time.Minute})

	scheduler.mu.RLock()
	sc := scheduler.schedulers["cashier-1"]
	scheduler.mu.RUnlock()
	sc.active = true

	// A tick that finds a draw in flight is dropped, not queued
	sc.processing.Store(true)
	scheduler.tick(sc)
	assert.Equal(t, 0, sc.totalDraws)

	sc.processing.Store(false)
	scheduler.tick(sc)
	assert.Equal(t, 1, sc.totalDraws)
	assert.Equal(t, 1, sc.successfulDraws)
}

func TestSchedulerPersistFailureRestoresNumber(t *testing.T) {
	scheduler, factory, pools := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)
	pools.Initialize("session-1")
	scheduler.Initialize("cashier-1", "session-1", DrawConfig{Interval: time.Minute})

	scheduler.mu.RLock()
	sc := scheduler.schedulers["cashier-1"]
	scheduler.mu.RUnlock()
	sc.active = true

	factory.uow.sessionRepo.setAppendErr(errors.New("db down"))
	scheduler.tick(sc)

	assert.Equal(t, 1, sc.failedDraws)
	assert.NotEmpty(t, scheduler.Errors("cashier-1"))

	// The unpersisted number went back to the pool
	poolStats, err := pools.Stats("session-1")
	require.NoError(t, err)
	assert.Equal(t, services.PoolSize, poolStats.Remaining)

	// Once persistence recovers, the next tick succeeds
	factory.uow.sessionRepo.setAppendErr(nil)
	scheduler.tick(sc)
	assert.Equal(t, 1, sc.successfulDraws)

	stats, ok := scheduler.Stats("cashier-1")
	require.True(t, ok)
	assert.InDelta(t, 50.0, stats.PerformanceScore, 0.001)
}

func TestSchedulerStopDiscardsInFlightDraw(t *testing.T) {
	scheduler, factory, pools := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)
	pools.Initialize("session-1")
	scheduler.Initialize("cashier-1", "session-1", DrawConfig{Interval: time.Minute})

	scheduler.mu.RLock()
	sc := scheduler.schedulers["cashier-1"]
	scheduler.mu.RUnlock()

	// The scheduler was stopped while the tick is running: the drawn
	// number must be restored, not persisted
	sc.active = false
	scheduler.tick(sc)

	drawn, err := factory.uow.sessionRepo.GetDrawnNumbers(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Empty(t, drawn)

	poolStats, err := pools.Stats("session-1")
	require.NoError(t, err)
	assert.Equal(t, services.PoolSize, poolStats.Remaining)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	scheduler, factory, pools := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)
	pools.Initialize("session-1")
	scheduler.Initialize("cashier-1", "session-1", DrawConfig{Interval: time.Minute})

	require.True(t, scheduler.Start(context.Background(), "cashier-1", "session-1"))
	scheduler.Stop("cashier-1")
	scheduler.Stop("cashier-1")
	scheduler.Stop("unknown-cashier")

	stats, ok := scheduler.Stats("cashier-1")
	require.True(t, ok)
	assert.False(t, stats.IsActive)
}

func TestSchedulerUpdateConfig(t *testing.T) {
	scheduler, factory, pools := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)
	pools.Initialize("session-1")
	scheduler.Initialize("cashier-1", "session-1", DrawConfig{Interval: time.Hour})

	require.True(t, scheduler.Start(context.Background(), "cashier-1", "session-1"))
	defer scheduler.Stop("cashier-1")

	// Dropping from an hour to milliseconds must reschedule the pending
	// fire; draws then arrive almost immediately
	scheduler.UpdateConfig("cashier-1", DrawConfig{Interval: time.Millisecond})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		drawn, err := factory.uow.sessionRepo.GetDrawnNumbers(context.Background(), "session-1")
		require.NoError(t, err)
		if len(drawn) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no draw arrived after the interval was compressed")
}

func TestSchedulerUpdateConfigIgnoresInvalidInterval(t *testing.T) {
	scheduler, factory, pools := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)
	pools.Initialize("session-1")
	scheduler.Initialize("cashier-1", "session-1", DrawConfig{Interval: time.Minute})

	scheduler.UpdateConfig("cashier-1", DrawConfig{Interval: 0})
	scheduler.UpdateConfig("cashier-1", DrawConfig{Interval: -time.Second})

	scheduler.mu.RLock()
	sc := scheduler.schedulers["cashier-1"]
	scheduler.mu.RUnlock()
	assert.Equal(t, time.Minute, sc.interval)
}

func TestSchedulerErrorLogIsBounded(t *testing.T) {
	scheduler, factory, pools := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)
	pools.Initialize("session-1")
	scheduler.Initialize("cashier-1", "session-1", DrawConfig{Interval: time.Minute})

	scheduler.mu.RLock()
	sc := scheduler.schedulers["cashier-1"]
	scheduler.mu.RUnlock()

	for i := 0; i < maxErrorLog+15; i++ {
		sc.recordError("transient failure")
	}

	assert.Len(t, scheduler.Errors("cashier-1"), maxErrorLog)
}

func TestSchedulerCleanupReleasesEverything(t *testing.T) {
	scheduler, factory, pools := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)
	pools.Initialize("session-1")
	scheduler.Initialize("cashier-1", "session-1", DrawConfig{Interval: time.Minute})
	require.True(t, scheduler.Start(context.Background(), "cashier-1", "session-1"))

	scheduler.Cleanup("cashier-1")

	_, ok := scheduler.Stats("cashier-1")
	assert.False(t, ok)

	_, _, err := pools.Draw("session-1")
	assert.ErrorIs(t, err, services.ErrPoolNotInitialized)
}

func TestSchedulerStatsUnknownCashier(t *testing.T) {
	scheduler, _, _ := newSchedulerFixture(t)
	_, ok := scheduler.Stats("nobody")
	assert.False(t, ok)
	assert.Nil(t, scheduler.Errors("nobody"))
}

func TestSchedulerDrawCadenceTracksInterval(t *testing.T) {
	scheduler, factory, pools := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)
	pools.Initialize("session-1")
	scheduler.Initialize("cashier-1", "session-1", DrawConfig{Interval: 100 * time.Millisecond})

	require.True(t, scheduler.Start(context.Background(), "cashier-1", "session-1"))
	// 2.5 intervals: the timer fires twice; a third fire would mean the
	// loop is running hot
	time.Sleep(250 * time.Millisecond)
	scheduler.Stop("cashier-1")

	drawn, err := factory.uow.sessionRepo.GetDrawnNumbers(context.Background(), "session-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(drawn), 1)
	assert.LessOrEqual(t, len(drawn), 3)
}

func TestSchedulerExhaustionRollsBackFailedCommit(t *testing.T) {
	scheduler, factory, pools := newSchedulerFixture(t)
	seedSession(t, factory, "session-1", "cashier-1", entities.SessionStatusActive)
	pools.Initialize("session-1")
	scheduler.Initialize("cashier-1", "session-1", DrawConfig{Interval: time.Minute})

	completed := false
	scheduler.OnComplete(func(cashierID, sessionID string) {
		completed = true
	})

	scheduler.mu.RLock()
	sc := scheduler.schedulers["cashier-1"]
	scheduler.mu.RUnlock()
	require.NotNil(t, sc)

	factory.uow.setCommitErr(errors.New("connection reset"))
	scheduler.handleExhaustion(sc)

	// The completion transaction failed to commit; its unit of work must
	// still be rolled back, not leaked, and completion still signals
	assert.True(t, completed)
	assert.Equal(t, 1, factory.uow.rollbackCount())
}
