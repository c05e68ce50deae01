package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
)

// HourlyAggregator recomputes the hour-aligned statistics overlapping a
// window from the underlying transactions. Buckets are upserted by their
// (constituency, election, hour) key, so re-running the same window is
// idempotent and concurrent overlapping runs converge.
type HourlyAggregator struct {
	constituencies domain.ConstituencyRepository
	transactions   domain.TransactionRepository
	stats          domain.HourlyStatRepository
	logger         *logger.Logger
}

func NewHourlyAggregator(
	constituencies domain.ConstituencyRepository,
	transactions domain.TransactionRepository,
	stats domain.HourlyStatRepository,
	log *logger.Logger,
) *HourlyAggregator {
	return &HourlyAggregator{
		constituencies: constituencies,
		transactions:   transactions,
		stats:          stats,
		logger:         log,
	}
}

// Aggregate recomputes every hour bucket overlapping [from, to). Empty
// buckets inside the window are written too, so stale counts from earlier
// runs are overwritten rather than left behind.
func (a *HourlyAggregator) Aggregate(ctx context.Context, constituencyID string, from, to time.Time) ([]domain.HourlyStat, error) {
	constituency, err := a.constituencies.GetByID(ctx, constituencyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMetricsUpdate, err)
	}
	if constituency == nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrMetricsUpdate, constituencyID, domain.ErrConstituencyNotFound)
	}

	from = from.UTC().Truncate(time.Hour)
	to = to.UTC()
	if !to.After(from) {
		to = from.Add(time.Hour)
	}
	alignedEnd := to.Truncate(time.Hour)
	if alignedEnd.Before(to) {
		alignedEnd = alignedEnd.Add(time.Hour)
	}

	txs, err := a.transactions.ListByWindow(ctx, constituencyID, from, alignedEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMetricsUpdate, err)
	}

	buckets := make(map[time.Time]*domain.HourlyStat)
	for hour := from; hour.Before(alignedEnd); hour = hour.Add(time.Hour) {
		buckets[hour] = &domain.HourlyStat{
			ConstituencyID: constituencyID,
			ElectionID:     constituency.ElectionID,
			Hour:           hour,
		}
	}

	for _, tx := range txs {
		hour := tx.Timestamp.UTC().Truncate(time.Hour)
		stat, ok := buckets[hour]
		if !ok {
			continue
		}
		stat.TransactionCount++
		switch tx.Type {
		case domain.TransactionBlindSigIssue:
			stat.BulletinsIssued++
		case domain.TransactionVote:
			stat.VotesCast++
		}
	}

	stats := make([]domain.HourlyStat, 0, len(buckets))
	for hour := from; hour.Before(alignedEnd); hour = hour.Add(time.Hour) {
		stat := buckets[hour]
		// Buckets are hour-wide, so velocity is the plain count.
		stat.BulletinVelocity = float64(stat.BulletinsIssued)
		stat.VoteVelocity = float64(stat.VotesCast)
		stat.ParticipationRate = participationRate(stat.VotesCast, constituency.RegisteredVoters)
		stat.UpdatedAt = time.Now()
		stats = append(stats, *stat)
	}

	if err := a.stats.UpsertBatch(ctx, stats); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMetricsUpdate, err)
	}

	a.logger.Debugw("Aggregated hourly stats",
		"constituency", constituencyID,
		"from", from,
		"to", alignedEnd,
		"buckets", len(stats),
		"transactions", len(txs),
	)

	return stats, nil
}

// participationRate is defined as 0 when no voters are registered.
func participationRate(votes, registered int64) float64 {
	if registered <= 0 {
		return 0
	}
	return float64(votes) / float64(registered)
}
