package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
)

// HourlyStatRepository stores aggregated hour buckets keyed by
// (constituency_id, hour). Upserts replace the whole row, so
// re-aggregating a window overwrites whatever an earlier run produced.
type HourlyStatRepository struct {
	db     *pgxpool.Pool
	logger *logger.Logger
}

func NewHourlyStatRepository(db *pgxpool.Pool, logger *logger.Logger) *HourlyStatRepository {
	return &HourlyStatRepository{
		db:     db,
		logger: logger,
	}
}

const hourlyStatColumns = `constituency_id, election_id, hour, bulletins_issued, votes_cast, transaction_count, bulletin_velocity, vote_velocity, participation_rate, anomaly_count, updated_at`

func (r *HourlyStatRepository) UpsertBatch(ctx context.Context, stats []domain.HourlyStat) error {
	if len(stats) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		tx.Rollback(context.Background())
	}()

	batch := &pgx.Batch{}
	query := `
		INSERT INTO hourly_stats (` + hourlyStatColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (constituency_id, hour) DO UPDATE SET
			election_id = EXCLUDED.election_id,
			bulletins_issued = EXCLUDED.bulletins_issued,
			votes_cast = EXCLUDED.votes_cast,
			transaction_count = EXCLUDED.transaction_count,
			bulletin_velocity = EXCLUDED.bulletin_velocity,
			vote_velocity = EXCLUDED.vote_velocity,
			participation_rate = EXCLUDED.participation_rate,
			anomaly_count = EXCLUDED.anomaly_count,
			updated_at = NOW()
	`

	for _, s := range stats {
		batch.Queue(query,
			s.ConstituencyID,
			s.ElectionID,
			s.Hour,
			s.BulletinsIssued,
			s.VotesCast,
			s.TransactionCount,
			s.BulletinVelocity,
			s.VoteVelocity,
			s.ParticipationRate,
			s.AnomalyCount,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to execute batch item %d: %w", i, err)
		}
	}

	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch result: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debugw("Upserted hourly stats", "buckets", len(stats))
	return nil
}

func (r *HourlyStatRepository) ListByConstituency(ctx context.Context, constituencyID string) ([]domain.HourlyStat, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `SELECT ` + hourlyStatColumns + ` FROM hourly_stats WHERE constituency_id = $1 ORDER BY hour`

	return r.list(ctx, query, constituencyID)
}

func (r *HourlyStatRepository) ListByElection(ctx context.Context, electionID string) ([]domain.HourlyStat, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `SELECT ` + hourlyStatColumns + ` FROM hourly_stats WHERE election_id = $1 ORDER BY constituency_id, hour`

	return r.list(ctx, query, electionID)
}

func (r *HourlyStatRepository) list(ctx context.Context, query string, args ...any) ([]domain.HourlyStat, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.HourlyStat
	for rows.Next() {
		var s domain.HourlyStat
		err := rows.Scan(
			&s.ConstituencyID,
			&s.ElectionID,
			&s.Hour,
			&s.BulletinsIssued,
			&s.VotesCast,
			&s.TransactionCount,
			&s.BulletinVelocity,
			&s.VoteVelocity,
			&s.ParticipationRate,
			&s.AnomalyCount,
			&s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hourly stat: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}
