package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
	"github.com/Ludentes/RooDemo-sub001/pkg/metrics"
	"github.com/google/uuid"
)

// RowSource is a lazy sequence of parsed rows; RowIterator satisfies it.
type RowSource interface {
	Next() (domain.RawTransaction, bool)
	Err() error
}

// BatchProcessor validates and persists rows with per-item failure
// isolation: one bad row never aborts the batch. Accepted rows are
// persisted in chunks, each chunk inside a single storage transaction.
type BatchProcessor struct {
	validator    *Validator
	transactions domain.TransactionRepository
	queue        domain.UpdateQueue
	logger       *logger.Logger
	batchSize    int
}

func NewBatchProcessor(
	validator *Validator,
	transactions domain.TransactionRepository,
	queue domain.UpdateQueue,
	log *logger.Logger,
	batchSize int,
) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &BatchProcessor{
		validator:    validator,
		transactions: transactions,
		queue:        queue,
		logger:       log,
		batchSize:    batchSize,
	}
}

// Process consumes rows in input order. Every row ends as exactly one of
// persisted, skipped-duplicate, or rejected-invalid; the result carries
// the counts and the rejected rows with reasons. A hard storage failure
// rolls back the open chunk and surfaces a transaction save error.
func (b *BatchProcessor) Process(ctx context.Context, rows RowSource, meta *domain.FileMetadata) (*domain.BatchResult, error) {
	result := &domain.BatchResult{}
	chunk := make([]domain.Transaction, 0, b.batchSize)
	index := 0

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		persisted, duplicates, err := b.transactions.SaveBatch(ctx, chunk)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrTransactionSave, err)
		}
		// Concurrent batches may have raced us to the same rows; the
		// store reports them as duplicates rather than failing.
		result.Persisted += persisted
		result.Skipped += duplicates
		chunk = chunk[:0]
		return nil
	}

	for {
		row, ok := rows.Next()
		if !ok {
			break
		}

		res, err := b.validator.Validate(ctx, row, meta)
		if err != nil {
			// A lookup failure, not a failed write; rows already flushed
			// are committed and the caller may retry the file.
			return nil, fmt.Errorf("validate row %d: %w", index, err)
		}

		switch res.Outcome {
		case OutcomeDuplicate:
			result.Skipped++
		case OutcomeRejected:
			result.Rejected = append(result.Rejected, domain.RejectedTransaction{
				Index:  index,
				TxID:   row.TxID,
				Reason: res.Reason,
			})
		case OutcomeAccepted:
			chunk = append(chunk, b.toTransaction(row, meta))
			if len(chunk) >= b.batchSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
		index++
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	metrics.RecordBatch(result.Persisted, result.Skipped, len(result.Rejected))
	b.logger.Infow("Processed transaction batch",
		"constituency", meta.ConstituencyID,
		"persisted", result.Persisted,
		"skipped", result.Skipped,
		"rejected", len(result.Rejected),
	)

	if result.Persisted > 0 {
		// The file's hour range tells the scheduler exactly which buckets
		// to recompute, however old the export is.
		from, to := HourRangeWindow(meta)
		task := domain.UpdateTask{
			ID:             uuid.New().String(),
			Trigger:        domain.TriggerNewTransaction,
			ConstituencyID: meta.ConstituencyID,
			WindowFrom:     from,
			WindowTo:       to,
			EnqueuedAt:     time.Now(),
		}
		if err := b.queue.Enqueue(task); err != nil {
			// Data is already durable; the periodic trigger will catch up.
			b.logger.Warnw("Failed to enqueue update task",
				"constituency", meta.ConstituencyID, "error", err)
		}
	}

	return result, nil
}

func (b *BatchProcessor) toTransaction(row domain.RawTransaction, meta *domain.FileMetadata) domain.Transaction {
	source := meta.Source
	if source == "" {
		source = domain.SourceUpload
	}
	return domain.Transaction{
		ID:             uuid.New().String(),
		TxID:           row.TxID,
		ConstituencyID: meta.ConstituencyID,
		BlockHeight:    row.BlockHeight,
		Timestamp:      row.Timestamp,
		Type:           row.Type,
		RawData:        row.RawData,
		OperationData:  row.OperationData,
		Status:         "processed",
		Source:         source,
		CreatedAt:      time.Now(),
	}
}
