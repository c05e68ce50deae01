package ingestion

import (
	"context"
	"time"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/stretchr/testify/mock"
)

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

type MockUpdateQueue struct {
	mock.Mock
}

func (m *MockUpdateQueue) Enqueue(task domain.UpdateTask) error {
	args := m.Called(task)
	return args.Error(0)
}

func (m *MockUpdateQueue) DeadTasks() []domain.DeadTask {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.DeadTask)
}
