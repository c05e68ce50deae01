package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
)

type ElectionRepository struct {
	db     *pgxpool.Pool
	logger *logger.Logger
}

func NewElectionRepository(db *pgxpool.Pool, logger *logger.Logger) *ElectionRepository {
	return &ElectionRepository{
		db:     db,
		logger: logger,
	}
}

const electionColumns = `id, name, start_time, end_time, status, registered_voters, bulletins_issued, votes_cast, participation_rate, updated_at`

func scanElection(row pgx.Row) (*domain.Election, error) {
	var e domain.Election
	err := row.Scan(
		&e.ID,
		&e.Name,
		&e.StartTime,
		&e.EndTime,
		&e.Status,
		&e.RegisteredVoters,
		&e.BulletinsIssued,
		&e.VotesCast,
		&e.ParticipationRate,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ElectionRepository) GetByID(ctx context.Context, id string) (*domain.Election, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + electionColumns + ` FROM elections WHERE id = $1`

	election, err := scanElection(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get election: %w", err)
	}

	return election, nil
}

func (r *ElectionRepository) ListActive(ctx context.Context) ([]domain.Election, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `SELECT ` + electionColumns + ` FROM elections WHERE status = $1 ORDER BY start_time`

	rows, err := r.db.Query(ctx, query, domain.ElectionActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query elections: %w", err)
	}
	defer rows.Close()

	var elections []domain.Election
	for rows.Next() {
		election, err := scanElection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan election: %w", err)
		}
		elections = append(elections, *election)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return elections, nil
}

func (r *ElectionRepository) Upsert(ctx context.Context, election *domain.Election) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Reference fields come from the registry; cumulative metric fields
	// stay untouched so a sync never clobbers calculator output.
	query := `
		INSERT INTO elections (id, name, start_time, end_time, status, registered_voters, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			status = EXCLUDED.status,
			registered_voters = EXCLUDED.registered_voters,
			updated_at = NOW()
	`

	_, err := r.db.Exec(ctx, query,
		election.ID,
		election.Name,
		election.StartTime,
		election.EndTime,
		election.Status,
		election.RegisteredVoters,
	)
	if err != nil {
		r.logger.Errorw("Failed to upsert election", "error", err, "election", election.ID)
		return fmt.Errorf("failed to upsert election: %w", err)
	}

	return nil
}

func (r *ElectionRepository) UpdateMetrics(ctx context.Context, election *domain.Election) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		UPDATE elections
		SET bulletins_issued = $2,
		    votes_cast = $3,
		    participation_rate = $4,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query,
		election.ID,
		election.BulletinsIssued,
		election.VotesCast,
		election.ParticipationRate,
	)
	if err != nil {
		return fmt.Errorf("failed to update election metrics: %w", err)
	}

	return nil
}
