package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
)

// TransactionRepository persists chain transactions. The
// (constituency_id, tx_id) unique constraint is what makes re-uploads
// idempotent; conflicting rows are counted, never overwritten.
type TransactionRepository struct {
	db     *pgxpool.Pool
	logger *logger.Logger
}

func NewTransactionRepository(db *pgxpool.Pool, logger *logger.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *TransactionRepository) SaveBatch(ctx context.Context, txs []domain.Transaction) (int, int, error) {
	if len(txs) == 0 {
		return 0, 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Use a fresh context for rollback to ensure it always works
		tx.Rollback(context.Background())
	}()

	batch := &pgx.Batch{}
	query := `
		INSERT INTO transactions (id, tx_id, constituency_id, block_height, timestamp, type, raw_data, operation_data, status, source, anomaly, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (constituency_id, tx_id) DO NOTHING
	`

	for _, t := range txs {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now()
		}

		batch.Queue(query,
			t.ID,
			t.TxID,
			t.ConstituencyID,
			t.BlockHeight,
			t.Timestamp,
			t.Type,
			t.RawData,
			t.OperationData,
			t.Status,
			t.Source,
			t.Anomaly,
			t.CreatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)

	persisted := 0
	duplicates := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, 0, fmt.Errorf("failed to execute batch item %d: %w", i, err)
		}
		if tag.RowsAffected() == 0 {
			duplicates++
			continue
		}
		persisted++
	}

	// Close the batch result before committing the transaction
	if err := br.Close(); err != nil {
		return 0, 0, fmt.Errorf("failed to close batch result: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Infow("Saved batch of transactions", "attempted", len(txs), "saved", persisted, "duplicates", duplicates)
	return persisted, duplicates, nil
}

func (r *TransactionRepository) Exists(ctx context.Context, constituencyID, txID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM transactions
			WHERE constituency_id = $1 AND tx_id = $2
		)
	`

	err := r.db.QueryRow(ctx, query, constituencyID, txID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check if transaction exists: %w", err)
	}

	return exists, nil
}

func (r *TransactionRepository) ListByWindow(ctx context.Context, constituencyID string, from, to time.Time) ([]domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
		SELECT id, tx_id, constituency_id, block_height, timestamp, type, raw_data, operation_data, status, source, anomaly, created_at
		FROM transactions
		WHERE constituency_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC
	`

	rows, err := r.db.Query(ctx, query, constituencyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		err := rows.Scan(
			&t.ID,
			&t.TxID,
			&t.ConstituencyID,
			&t.BlockHeight,
			&t.Timestamp,
			&t.Type,
			&t.RawData,
			&t.OperationData,
			&t.Status,
			&t.Source,
			&t.Anomaly,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return txs, nil
}

func (r *TransactionRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var count int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM transactions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}
