package domain

import (
	"context"
	"time"
)

type ElectionRepository interface {
	GetByID(ctx context.Context, id string) (*Election, error)
	ListActive(ctx context.Context) ([]Election, error)
	Upsert(ctx context.Context, election *Election) error
	UpdateMetrics(ctx context.Context, election *Election) error
}

type ConstituencyRepository interface {
	GetByID(ctx context.Context, id string) (*Constituency, error)
	ListByElection(ctx context.Context, electionID string) ([]Constituency, error)
	// ListActive returns constituencies belonging to elections currently
	// in active status.
	ListActive(ctx context.Context) ([]Constituency, error)
	Upsert(ctx context.Context, constituency *Constituency) error
	// UpdateMetrics writes the calculator's cumulative fields under an
	// optimistic version check; it returns ErrVersionConflict when the row
	// changed underneath the caller.
	UpdateMetrics(ctx context.Context, constituency *Constituency) error
}

type TransactionRepository interface {
	// SaveBatch persists transactions inside a single storage transaction.
	// Rows already present (same constituency and tx id) are skipped, not
	// overwritten; the duplicate count is returned.
	SaveBatch(ctx context.Context, txs []Transaction) (persisted, duplicates int, err error)
	Exists(ctx context.Context, constituencyID, txID string) (bool, error)
	ListByWindow(ctx context.Context, constituencyID string, from, to time.Time) ([]Transaction, error)
	Count(ctx context.Context) (int64, error)
}

type HourlyStatRepository interface {
	UpsertBatch(ctx context.Context, stats []HourlyStat) error
	ListByConstituency(ctx context.Context, constituencyID string) ([]HourlyStat, error)
	ListByElection(ctx context.Context, electionID string) ([]HourlyStat, error)
}

// IngestionService is the surface the HTTP layer and the watch callback
// consume.
type IngestionService interface {
	ProcessUpload(ctx context.Context, filename string, data []byte, source TransactionSource) (*ProcessingResult, error)
	ProcessDirectory(ctx context.Context, path string) (*DirectoryProcessingResult, error)
	GetStatistics(ctx context.Context, constituencyID string, granularity Granularity, from, to time.Time) (*ConstituencyMetrics, error)
}

// UpdateQueue decouples aggregation triggers from the calculation work.
type UpdateQueue interface {
	Enqueue(task UpdateTask) error
	DeadTasks() []DeadTask
}
