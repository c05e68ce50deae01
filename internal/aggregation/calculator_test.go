package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
)

func statAt(hour time.Time, bulletins, votes int64) domain.HourlyStat {
	return domain.HourlyStat{
		ConstituencyID:   "KT1VoteContract001",
		ElectionID:       "election-2026",
		Hour:             hour,
		BulletinsIssued:  bulletins,
		VotesCast:        votes,
		TransactionCount: bulletins + votes,
		BulletinVelocity: float64(bulletins),
		VoteVelocity:     float64(votes),
	}
}

func testElection() *domain.Election {
	return &domain.Election{
		ID:               "election-2026",
		Name:             "General 2026",
		Status:           domain.ElectionActive,
		RegisteredVoters: 10000,
	}
}

func calculatorFixture(t *testing.T) (*MockElectionRepository, *MockConstituencyRepository, *MockHourlyStatRepository, *MetricsCalculator) {
	t.Helper()
	elections := new(MockElectionRepository)
	constituencies := new(MockConstituencyRepository)
	stats := new(MockHourlyStatRepository)
	calc := NewMetricsCalculator(elections, constituencies, stats, DefaultPolicy(), testLogger(t))
	return elections, constituencies, stats, calc
}

func TestMetricsCalculator_CumulativeRollup(t *testing.T) {
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	elections, constituencies, stats, calc := calculatorFixture(t)

	constituencies.On("GetByID", mock.Anything, "KT1VoteContract001").Return(testConstituency(), nil)
	stats.On("ListByConstituency", mock.Anything, "KT1VoteContract001").Return([]domain.HourlyStat{
		statAt(base, 100, 80),
		statAt(base.Add(time.Hour), 50, 60),
	}, nil)

	var updated *domain.Constituency
	constituencies.On("UpdateMetrics", mock.Anything, mock.MatchedBy(func(c *domain.Constituency) bool {
		updated = c
		return true
	})).Return(nil)

	elections.On("GetByID", mock.Anything, "election-2026").Return(testElection(), nil)
	stats.On("ListByElection", mock.Anything, "election-2026").Return([]domain.HourlyStat{
		statAt(base, 100, 80),
		statAt(base.Add(time.Hour), 50, 60),
	}, nil)
	elections.On("UpdateMetrics", mock.Anything, mock.Anything).Return(nil)

	err := calc.Recalculate(context.Background(), "KT1VoteContract001")
	require.NoError(t, err)

	require.NotNil(t, updated)
	assert.Equal(t, int64(150), updated.BulletinsIssued)
	assert.Equal(t, int64(140), updated.VotesCast)
	assert.InDelta(t, 0.14, updated.ParticipationRate, 1e-9)
	assert.Equal(t, int64(0), updated.AnomalyCount)
	assert.Equal(t, base.Add(time.Hour), updated.LastActivity)

	elections.AssertExpectations(t)
}

func TestMetricsCalculator_VotesExceedBulletins(t *testing.T) {
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	elections, constituencies, stats, calc := calculatorFixture(t)

	rows := []domain.HourlyStat{
		statAt(base, 10, 10),
		statAt(base.Add(time.Hour), 5, 9),
	}
	constituencies.On("GetByID", mock.Anything, "KT1VoteContract001").Return(testConstituency(), nil)
	stats.On("ListByConstituency", mock.Anything, "KT1VoteContract001").Return(rows, nil)

	var bucketWrites []domain.HourlyStat
	stats.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(s []domain.HourlyStat) bool {
		bucketWrites = s
		return true
	})).Return(nil)

	var updated *domain.Constituency
	constituencies.On("UpdateMetrics", mock.Anything, mock.MatchedBy(func(c *domain.Constituency) bool {
		updated = c
		return true
	})).Return(nil)

	elections.On("GetByID", mock.Anything, "election-2026").Return(testElection(), nil)
	stats.On("ListByElection", mock.Anything, "election-2026").Return(rows, nil)
	elections.On("UpdateMetrics", mock.Anything, mock.Anything).Return(nil)

	err := calc.Recalculate(context.Background(), "KT1VoteContract001")
	require.NoError(t, err)

	require.Len(t, bucketWrites, 1)
	assert.Equal(t, base.Add(time.Hour), bucketWrites[0].Hour)
	assert.Equal(t, int64(1), bucketWrites[0].AnomalyCount)

	require.NotNil(t, updated)
	assert.Equal(t, int64(1), updated.AnomalyCount)
	assert.Equal(t, 1.0, updated.AnomalyScore)
}

func TestMetricsCalculator_VelocitySpike(t *testing.T) {
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	elections, constituencies, stats, calc := calculatorFixture(t)

	// Steady velocity of 10 then a burst of 100, well over the 3x default.
	rows := []domain.HourlyStat{
		statAt(base, 20, 10),
		statAt(base.Add(time.Hour), 20, 10),
		statAt(base.Add(2*time.Hour), 200, 100),
	}
	constituencies.On("GetByID", mock.Anything, "KT1VoteContract001").Return(testConstituency(), nil)
	stats.On("ListByConstituency", mock.Anything, "KT1VoteContract001").Return(rows, nil)
	stats.On("UpsertBatch", mock.Anything, mock.Anything).Return(nil)

	var updated *domain.Constituency
	constituencies.On("UpdateMetrics", mock.Anything, mock.MatchedBy(func(c *domain.Constituency) bool {
		updated = c
		return true
	})).Return(nil)

	elections.On("GetByID", mock.Anything, "election-2026").Return(testElection(), nil)
	stats.On("ListByElection", mock.Anything, "election-2026").Return(rows, nil)
	elections.On("UpdateMetrics", mock.Anything, mock.Anything).Return(nil)

	err := calc.Recalculate(context.Background(), "KT1VoteContract001")
	require.NoError(t, err)

	require.NotNil(t, updated)
	assert.Equal(t, int64(1), updated.AnomalyCount)
	assert.Equal(t, 0.5, updated.AnomalyScore)
}

func TestMetricsCalculator_LowParticipation(t *testing.T) {
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	elections, constituencies, stats, calc := calculatorFixture(t)

	// 1000 registered, 5 votes: participation 0.005 is under the 1% floor.
	rows := []domain.HourlyStat{statAt(base, 5, 5)}
	constituencies.On("GetByID", mock.Anything, "KT1VoteContract001").Return(testConstituency(), nil)
	stats.On("ListByConstituency", mock.Anything, "KT1VoteContract001").Return(rows, nil)

	var updated *domain.Constituency
	constituencies.On("UpdateMetrics", mock.Anything, mock.MatchedBy(func(c *domain.Constituency) bool {
		updated = c
		return true
	})).Return(nil)

	elections.On("GetByID", mock.Anything, "election-2026").Return(testElection(), nil)
	stats.On("ListByElection", mock.Anything, "election-2026").Return(rows, nil)
	elections.On("UpdateMetrics", mock.Anything, mock.Anything).Return(nil)

	err := calc.Recalculate(context.Background(), "KT1VoteContract001")
	require.NoError(t, err)

	require.NotNil(t, updated)
	assert.Equal(t, int64(1), updated.AnomalyCount)
	assert.Equal(t, 0.25, updated.AnomalyScore)
	// Low participation attaches to the constituency, not to any bucket.
	stats.AssertNotCalled(t, "UpsertBatch", mock.Anything, mock.Anything)
}

func TestMetricsCalculator_ZeroTurnoutFlagged(t *testing.T) {
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	elections, constituencies, stats, calc := calculatorFixture(t)

	// Bulletins were issued but nobody voted: participation 0 is as far
	// under the floor as it gets.
	rows := []domain.HourlyStat{statAt(base, 3, 0)}
	constituencies.On("GetByID", mock.Anything, "KT1VoteContract001").Return(testConstituency(), nil)
	stats.On("ListByConstituency", mock.Anything, "KT1VoteContract001").Return(rows, nil)

	var updated *domain.Constituency
	constituencies.On("UpdateMetrics", mock.Anything, mock.MatchedBy(func(c *domain.Constituency) bool {
		updated = c
		return true
	})).Return(nil)

	elections.On("GetByID", mock.Anything, "election-2026").Return(testElection(), nil)
	stats.On("ListByElection", mock.Anything, "election-2026").Return(rows, nil)
	elections.On("UpdateMetrics", mock.Anything, mock.Anything).Return(nil)

	err := calc.Recalculate(context.Background(), "KT1VoteContract001")
	require.NoError(t, err)

	require.NotNil(t, updated)
	assert.Equal(t, int64(1), updated.AnomalyCount)
	assert.Equal(t, 0.25, updated.AnomalyScore)
}

func TestMetricsCalculator_NoRegisteredVotersNotFlagged(t *testing.T) {
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	elections, constituencies, stats, calc := calculatorFixture(t)

	// Without a voter roll there is no participation to be low.
	empty := testConstituency()
	empty.RegisteredVoters = 0
	rows := []domain.HourlyStat{statAt(base, 3, 0)}
	constituencies.On("GetByID", mock.Anything, "KT1VoteContract001").Return(empty, nil)
	stats.On("ListByConstituency", mock.Anything, "KT1VoteContract001").Return(rows, nil)

	var updated *domain.Constituency
	constituencies.On("UpdateMetrics", mock.Anything, mock.MatchedBy(func(c *domain.Constituency) bool {
		updated = c
		return true
	})).Return(nil)

	elections.On("GetByID", mock.Anything, "election-2026").Return(testElection(), nil)
	stats.On("ListByElection", mock.Anything, "election-2026").Return(rows, nil)
	elections.On("UpdateMetrics", mock.Anything, mock.Anything).Return(nil)

	err := calc.Recalculate(context.Background(), "KT1VoteContract001")
	require.NoError(t, err)

	require.NotNil(t, updated)
	assert.Equal(t, int64(0), updated.AnomalyCount)
	assert.Equal(t, 0.0, updated.AnomalyScore)
}

func TestMetricsCalculator_QuietHoursDoNotSpike(t *testing.T) {
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	elections, constituencies, stats, calc := calculatorFixture(t)

	// Steady traffic either side of an overnight gap. The empty hours
	// must not drag the trailing average down into spike territory.
	rows := []domain.HourlyStat{
		statAt(base, 10, 10),
		statAt(base.Add(1*time.Hour), 0, 0),
		statAt(base.Add(2*time.Hour), 0, 0),
		statAt(base.Add(3*time.Hour), 0, 0),
		statAt(base.Add(4*time.Hour), 10, 10),
	}
	constituencies.On("GetByID", mock.Anything, "KT1VoteContract001").Return(testConstituency(), nil)
	stats.On("ListByConstituency", mock.Anything, "KT1VoteContract001").Return(rows, nil)

	var updated *domain.Constituency
	constituencies.On("UpdateMetrics", mock.Anything, mock.MatchedBy(func(c *domain.Constituency) bool {
		updated = c
		return true
	})).Return(nil)

	elections.On("GetByID", mock.Anything, "election-2026").Return(testElection(), nil)
	stats.On("ListByElection", mock.Anything, "election-2026").Return(rows, nil)
	elections.On("UpdateMetrics", mock.Anything, mock.Anything).Return(nil)

	err := calc.Recalculate(context.Background(), "KT1VoteContract001")
	require.NoError(t, err)

	require.NotNil(t, updated)
	assert.Equal(t, int64(0), updated.AnomalyCount)
	assert.Equal(t, 0.0, updated.AnomalyScore)
	stats.AssertNotCalled(t, "UpsertBatch", mock.Anything, mock.Anything)
}

func TestMetricsCalculator_VersionConflictRetried(t *testing.T) {
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	elections, constituencies, stats, calc := calculatorFixture(t)

	rows := []domain.HourlyStat{statAt(base, 100, 80)}

	stale := testConstituency()
	fresh := testConstituency()
	fresh.Version = 2

	constituencies.On("GetByID", mock.Anything, "KT1VoteContract001").Return(stale, nil).Once()
	stats.On("ListByConstituency", mock.Anything, "KT1VoteContract001").Return(rows, nil)
	constituencies.On("UpdateMetrics", mock.Anything, mock.Anything).Return(domain.ErrVersionConflict).Once()
	constituencies.On("GetByID", mock.Anything, "KT1VoteContract001").Return(fresh, nil).Once()
	constituencies.On("UpdateMetrics", mock.Anything, mock.MatchedBy(func(c *domain.Constituency) bool {
		return c.Version == 2
	})).Return(nil).Once()

	elections.On("GetByID", mock.Anything, "election-2026").Return(testElection(), nil)
	stats.On("ListByElection", mock.Anything, "election-2026").Return(rows, nil)
	elections.On("UpdateMetrics", mock.Anything, mock.Anything).Return(nil)

	err := calc.Recalculate(context.Background(), "KT1VoteContract001")
	require.NoError(t, err)
	constituencies.AssertExpectations(t)
}

func TestMetricsCalculator_UnknownConstituency(t *testing.T) {
	_, constituencies, _, calc := calculatorFixture(t)
	constituencies.On("GetByID", mock.Anything, "missing").Return(nil, nil)

	err := calc.Recalculate(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMetricsUpdate)
	assert.ErrorIs(t, err, domain.ErrConstituencyNotFound)
}

func TestMetricsCalculator_QueryRebuckets(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	_, constituencies, stats, calc := calculatorFixture(t)

	constituency := testConstituency()
	constituency.BulletinsIssued = 40
	constituency.VotesCast = 30

	constituencies.On("GetByID", mock.Anything, "KT1VoteContract001").Return(constituency, nil)
	stats.On("ListByConstituency", mock.Anything, "KT1VoteContract001").Return([]domain.HourlyStat{
		statAt(base.Add(8*time.Hour), 10, 5),
		statAt(base.Add(9*time.Hour), 10, 10),
		statAt(base.Add(26*time.Hour), 20, 15),
	}, nil)

	result, err := calc.Query(context.Background(), "KT1VoteContract001", domain.GranularityDay, time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, int64(40), result.BulletinsIssued)
	assert.Equal(t, domain.GranularityDay, result.Granularity)
	require.Len(t, result.Buckets, 2)
	assert.Equal(t, base, result.Buckets[0].Start)
	assert.Equal(t, int64(20), result.Buckets[0].BulletinsIssued)
	assert.Equal(t, int64(15), result.Buckets[0].VotesCast)
	assert.Equal(t, base.Add(24*time.Hour), result.Buckets[1].Start)
	assert.Equal(t, int64(15), result.Buckets[1].VotesCast)
}

func TestMetricsCalculator_QueryWindowFilter(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	_, constituencies, stats, calc := calculatorFixture(t)

	constituencies.On("GetByID", mock.Anything, "KT1VoteContract001").Return(testConstituency(), nil)
	stats.On("ListByConstituency", mock.Anything, "KT1VoteContract001").Return([]domain.HourlyStat{
		statAt(base.Add(7*time.Hour), 1, 1),
		statAt(base.Add(8*time.Hour), 2, 2),
		statAt(base.Add(9*time.Hour), 3, 3),
	}, nil)

	result, err := calc.Query(context.Background(), "KT1VoteContract001",
		domain.GranularityHour, base.Add(8*time.Hour), base.Add(9*time.Hour))
	require.NoError(t, err)

	require.Len(t, result.Buckets, 1)
	assert.Equal(t, base.Add(8*time.Hour), result.Buckets[0].Start)
	assert.Equal(t, int64(2), result.Buckets[0].VotesCast)
}
