package aggregation

import (
	"context"
	"time"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockElectionRepository struct {
	mock.Mock
}

func (m *MockElectionRepository) GetByID(ctx context.Context, id string) (*domain.Election, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Election), args.Error(1)
}

func (m *MockElectionRepository) ListActive(ctx context.Context) ([]domain.Election, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Election), args.Error(1)
}

func (m *MockElectionRepository) Upsert(ctx context.Context, e *domain.Election) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockElectionRepository) UpdateMetrics(ctx context.Context, e *domain.Election) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

type MockConstituencyRepository struct {
	mock.Mock
}

func (m *MockConstituencyRepository) GetByID(ctx context.Context, id string) (*domain.Constituency, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Constituency), args.Error(1)
}

func (m *MockConstituencyRepository) ListByElection(ctx context.Context, electionID string) ([]domain.Constituency, error) {
	args := m.Called(ctx, electionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Constituency), args.Error(1)
}

func (m *MockConstituencyRepository) ListActive(ctx context.Context) ([]domain.Constituency, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Constituency), args.Error(1)
}

func (m *MockConstituencyRepository) Upsert(ctx context.Context, c *domain.Constituency) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockConstituencyRepository) UpdateMetrics(ctx context.Context, c *domain.Constituency) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) SaveBatch(ctx context.Context, txs []domain.Transaction) (int, int, error) {
	args := m.Called(ctx, txs)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockTransactionRepository) Exists(ctx context.Context, constituencyID, txID string) (bool, error) {
	args := m.Called(ctx, constituencyID, txID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) ListByWindow(ctx context.Context, constituencyID string, from, to time.Time) ([]domain.Transaction, error) {
	args := m.Called(ctx, constituencyID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockHourlyStatRepository struct {
	mock.Mock
}

func (m *MockHourlyStatRepository) UpsertBatch(ctx context.Context, stats []domain.HourlyStat) error {
	args := m.Called(ctx, stats)
	return args.Error(0)
}

func (m *MockHourlyStatRepository) ListByConstituency(ctx context.Context, constituencyID string) ([]domain.HourlyStat, error) {
	args := m.Called(ctx, constituencyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.HourlyStat), args.Error(1)
}

func (m *MockHourlyStatRepository) ListByElection(ctx context.Context, electionID string) ([]domain.HourlyStat, error) {
	args := m.Called(ctx, electionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.HourlyStat), args.Error(1)
}
