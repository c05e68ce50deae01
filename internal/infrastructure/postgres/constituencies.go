package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
)

type ConstituencyRepository struct {
	db     *pgxpool.Pool
	logger *logger.Logger
}

func NewConstituencyRepository(db *pgxpool.Pool, logger *logger.Logger) *ConstituencyRepository {
	return &ConstituencyRepository{
		db:     db,
		logger: logger,
	}
}

const constituencyColumns = `id, election_id, name, region, registered_voters, bulletins_issued, votes_cast, participation_rate, anomaly_score, anomaly_count, last_activity, version`

func scanConstituency(row pgx.Row) (*domain.Constituency, error) {
	var c domain.Constituency
	var lastActivity sql.NullTime
	err := row.Scan(
		&c.ID,
		&c.ElectionID,
		&c.Name,
		&c.Region,
		&c.RegisteredVoters,
		&c.BulletinsIssued,
		&c.VotesCast,
		&c.ParticipationRate,
		&c.AnomalyScore,
		&c.AnomalyCount,
		&lastActivity,
		&c.Version,
	)
	if err != nil {
		return nil, err
	}
	if lastActivity.Valid {
		c.LastActivity = lastActivity.Time
	}
	return &c, nil
}

func (r *ConstituencyRepository) GetByID(ctx context.Context, id string) (*domain.Constituency, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + constituencyColumns + ` FROM constituencies WHERE id = $1`

	constituency, err := scanConstituency(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get constituency: %w", err)
	}

	return constituency, nil
}

func (r *ConstituencyRepository) ListByElection(ctx context.Context, electionID string) ([]domain.Constituency, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `SELECT ` + constituencyColumns + ` FROM constituencies WHERE election_id = $1 ORDER BY id`

	return r.list(ctx, query, electionID)
}

func (r *ConstituencyRepository) ListActive(ctx context.Context) ([]domain.Constituency, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
		SELECT ` + constituencyColumns + `
		FROM constituencies
		WHERE election_id IN (SELECT id FROM elections WHERE status = $1)
		ORDER BY id
	`

	return r.list(ctx, query, domain.ElectionActive)
}

func (r *ConstituencyRepository) list(ctx context.Context, query string, args ...any) ([]domain.Constituency, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query constituencies: %w", err)
	}
	defer rows.Close()

	var constituencies []domain.Constituency
	for rows.Next() {
		constituency, err := scanConstituency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan constituency: %w", err)
		}
		constituencies = append(constituencies, *constituency)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return constituencies, nil
}

func (r *ConstituencyRepository) Upsert(ctx context.Context, constituency *domain.Constituency) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Reference fields only; metric fields and the version counter belong
	// to the calculator's update path.
	query := `
		INSERT INTO constituencies (id, election_id, name, region, registered_voters)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			election_id = EXCLUDED.election_id,
			name = EXCLUDED.name,
			region = EXCLUDED.region,
			registered_voters = EXCLUDED.registered_voters
	`

	_, err := r.db.Exec(ctx, query,
		constituency.ID,
		constituency.ElectionID,
		constituency.Name,
		constituency.Region,
		constituency.RegisteredVoters,
	)
	if err != nil {
		r.logger.Errorw("Failed to upsert constituency", "error", err, "constituency", constituency.ID)
		return fmt.Errorf("failed to upsert constituency: %w", err)
	}

	return nil
}

func (r *ConstituencyRepository) UpdateMetrics(ctx context.Context, constituency *domain.Constituency) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var lastActivity any
	if !constituency.LastActivity.IsZero() {
		lastActivity = constituency.LastActivity
	}

	query := `
		UPDATE constituencies
		SET bulletins_issued = $3,
		    votes_cast = $4,
		    participation_rate = $5,
		    anomaly_score = $6,
		    anomaly_count = $7,
		    last_activity = COALESCE($8::timestamptz, last_activity),
		    version = version + 1
		WHERE id = $1 AND version = $2
	`

	tag, err := r.db.Exec(ctx, query,
		constituency.ID,
		constituency.Version,
		constituency.BulletinsIssued,
		constituency.VotesCast,
		constituency.ParticipationRate,
		constituency.AnomalyScore,
		constituency.AnomalyCount,
		lastActivity,
	)
	if err != nil {
		return fmt.Errorf("failed to update constituency metrics: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("constituency %s at version %d: %w", constituency.ID, constituency.Version, domain.ErrVersionConflict)
	}

	constituency.Version++
	return nil
}
