package aggregation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/config"
)

func schedulerConfig() config.Scheduler {
	return config.Scheduler{
		Workers:       2,
		QueueSize:     8,
		MaxRetries:    2,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 5 * time.Millisecond,
		TaskTimeout:   time.Second,
		// Far enough out that the periodic trigger never fires in tests.
		CronSpec: "0 0 0 1 1 *",
	}
}

type trackingCache struct {
	MemoryCache
	mu          sync.Mutex
	invalidated []string
}

func newTrackingCache() *trackingCache {
	return &trackingCache{MemoryCache: *NewMemoryCache()}
}

func (c *trackingCache) InvalidateTag(ctx context.Context, tag string) int {
	c.mu.Lock()
	c.invalidated = append(c.invalidated, tag)
	c.mu.Unlock()
	return c.MemoryCache.InvalidateTag(ctx, tag)
}

func (c *trackingCache) tags() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.invalidated))
	copy(out, c.invalidated)
	return out
}

func schedulerFixture(t *testing.T, cache Cache) (*MockConstituencyRepository, *MockTransactionRepository, *MockHourlyStatRepository, *MockElectionRepository, *Scheduler) {
	t.Helper()
	constituencies := new(MockConstituencyRepository)
	transactions := new(MockTransactionRepository)
	stats := new(MockHourlyStatRepository)
	elections := new(MockElectionRepository)

	log := testLogger(t)
	aggregator := NewHourlyAggregator(constituencies, transactions, stats, log)
	calculator := NewMetricsCalculator(elections, constituencies, stats, DefaultPolicy(), log)
	scheduler := NewScheduler(aggregator, calculator, constituencies, cache, schedulerConfig(), log)
	return constituencies, transactions, stats, elections, scheduler
}

func stubHappyPath(constituencies *MockConstituencyRepository, transactions *MockTransactionRepository, stats *MockHourlyStatRepository, elections *MockElectionRepository) {
	constituencies.On("GetByID", mock.Anything, "KT1VoteContract001").Return(testConstituency(), nil)
	transactions.On("ListByWindow", mock.Anything, "KT1VoteContract001", mock.Anything, mock.Anything).Return([]domain.Transaction{}, nil)
	stats.On("UpsertBatch", mock.Anything, mock.Anything).Return(nil)
	stats.On("ListByConstituency", mock.Anything, "KT1VoteContract001").Return([]domain.HourlyStat{}, nil)
	constituencies.On("UpdateMetrics", mock.Anything, mock.Anything).Return(nil)
	elections.On("GetByID", mock.Anything, "election-2026").Return(testElection(), nil)
	stats.On("ListByElection", mock.Anything, "election-2026").Return([]domain.HourlyStat{}, nil)
	elections.On("UpdateMetrics", mock.Anything, mock.Anything).Return(nil)
}

func TestScheduler_ProcessesTask(t *testing.T) {
	cache := newTrackingCache()
	constituencies, transactions, stats, elections, scheduler := schedulerFixture(t, cache)
	stubHappyPath(constituencies, transactions, stats, elections)

	require.NoError(t, scheduler.Start())
	defer scheduler.Stop()

	err := scheduler.Enqueue(domain.UpdateTask{
		Trigger:        domain.TriggerNewTransaction,
		ConstituencyID: "KT1VoteContract001",
		ElectionID:     "election-2026",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(cache.tags()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.ElementsMatch(t, []string{"constituency:KT1VoteContract001", "election:election-2026"}, cache.tags())
	assert.Empty(t, scheduler.DeadTasks())
}

func TestScheduler_AggregatesTaskWindow(t *testing.T) {
	cache := newTrackingCache()
	constituencies, transactions, stats, elections, scheduler := schedulerFixture(t, cache)
	stubHappyPath(constituencies, transactions, stats, elections)

	// An export two days old: its hours must be recomputed, not a
	// trailing window that no longer covers them.
	from := time.Date(2026, 8, 27, 2, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	require.NoError(t, scheduler.Start())
	defer scheduler.Stop()

	require.NoError(t, scheduler.Enqueue(domain.UpdateTask{
		Trigger:        domain.TriggerNewTransaction,
		ConstituencyID: "KT1VoteContract001",
		ElectionID:     "election-2026",
		WindowFrom:     from,
		WindowTo:       to,
	}))

	require.Eventually(t, func() bool {
		return len(cache.tags()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	transactions.AssertCalled(t, "ListByWindow", mock.Anything, "KT1VoteContract001", from, to)
}

func TestScheduler_QueueFull(t *testing.T) {
	_, _, _, _, scheduler := schedulerFixture(t, NewMemoryCache())

	// Not started, so nothing drains the queue.
	for i := 0; i < schedulerConfig().QueueSize; i++ {
		require.NoError(t, scheduler.Enqueue(domain.UpdateTask{ConstituencyID: "c"}))
	}

	err := scheduler.Enqueue(domain.UpdateTask{ConstituencyID: "c"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQueueFull)
}

func TestScheduler_FailedTaskGoesDead(t *testing.T) {
	constituencies, _, _, _, scheduler := schedulerFixture(t, NewMemoryCache())
	constituencies.On("GetByID", mock.Anything, "KT1VoteContract001").Return(nil, errors.New("db down"))

	require.NoError(t, scheduler.Start())
	defer scheduler.Stop()

	require.NoError(t, scheduler.Enqueue(domain.UpdateTask{
		Trigger:        domain.TriggerManual,
		ConstituencyID: "KT1VoteContract001",
	}))

	require.Eventually(t, func() bool {
		return len(scheduler.DeadTasks()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	dead := scheduler.DeadTasks()[0]
	assert.Equal(t, domain.TriggerManual, dead.Task.Trigger)
	assert.Equal(t, "KT1VoteContract001", dead.Task.ConstituencyID)
	assert.Contains(t, dead.Error, "db down")
	assert.False(t, dead.FailedAt.IsZero())
}

func TestScheduler_EnqueueFillsDefaults(t *testing.T) {
	_, _, _, _, scheduler := schedulerFixture(t, NewMemoryCache())

	require.NoError(t, scheduler.Enqueue(domain.UpdateTask{ConstituencyID: "c"}))

	task := <-scheduler.tasks
	assert.NotEmpty(t, task.ID)
	assert.False(t, task.EnqueuedAt.IsZero())
}

func TestScheduler_StartIdempotent(t *testing.T) {
	_, _, _, _, scheduler := schedulerFixture(t, NewMemoryCache())

	require.NoError(t, scheduler.Start())
	require.NoError(t, scheduler.Start())
	scheduler.Stop()
	scheduler.Stop()
}
