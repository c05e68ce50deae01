package aggregation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/config"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
	"github.com/Ludentes/RooDemo-sub001/pkg/metrics"
)

const (
	ruleVotesExceedBulletins = "votes_exceed_bulletins"
	ruleVelocitySpike        = "velocity_spike"
	ruleLowParticipation     = "low_participation"

	versionRetries = 3
)

// AnomalyPolicy holds the thresholds and per-rule weights. The weighting
// is deployment policy, not a fixed formula.
type AnomalyPolicy struct {
	VelocitySpikeMultiplier    float64
	MinParticipationRate       float64
	VotesExceedBulletinsWeight float64
	VelocitySpikeWeight        float64
	LowParticipationWeight     float64
}

func PolicyFromConfig(cfg config.Anomaly) AnomalyPolicy {
	return AnomalyPolicy{
		VelocitySpikeMultiplier:    cfg.VelocitySpikeMultiplier,
		MinParticipationRate:       cfg.MinParticipationRate,
		VotesExceedBulletinsWeight: cfg.VotesExceedBulletinsWeight,
		VelocitySpikeWeight:        cfg.VelocitySpikeWeight,
		LowParticipationWeight:     cfg.LowParticipationWeight,
	}
}

func DefaultPolicy() AnomalyPolicy {
	return AnomalyPolicy{
		VelocitySpikeMultiplier:    3.0,
		MinParticipationRate:       0.01,
		VotesExceedBulletinsWeight: 1.0,
		VelocitySpikeWeight:        0.5,
		LowParticipationWeight:     0.25,
	}
}

// MetricsCalculator rolls hourly statistics into cumulative constituency
// and election metrics and scores anomalies. It is the only component
// that mutates those cumulative fields.
type MetricsCalculator struct {
	elections      domain.ElectionRepository
	constituencies domain.ConstituencyRepository
	stats          domain.HourlyStatRepository
	policy         AnomalyPolicy
	logger         *logger.Logger
}

func NewMetricsCalculator(
	elections domain.ElectionRepository,
	constituencies domain.ConstituencyRepository,
	stats domain.HourlyStatRepository,
	policy AnomalyPolicy,
	log *logger.Logger,
) *MetricsCalculator {
	return &MetricsCalculator{
		elections:      elections,
		constituencies: constituencies,
		stats:          stats,
		policy:         policy,
		logger:         log,
	}
}

type anomalyReport struct {
	score      float64
	count      int64
	perBucket  map[time.Time]int64
	lowTurnout bool
}

// Recalculate derives cumulative metrics and anomaly counts for one
// constituency, writes per-bucket anomaly counts back to the hourly rows,
// and updates the constituency and its election. The constituency write
// runs under an optimistic version check and is re-read on conflict.
func (c *MetricsCalculator) Recalculate(ctx context.Context, constituencyID string) error {
	constituency, err := c.constituencies.GetByID(ctx, constituencyID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMetricsUpdate, err)
	}
	if constituency == nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrMetricsUpdate, constituencyID, domain.ErrConstituencyNotFound)
	}

	stats, err := c.stats.ListByConstituency(ctx, constituencyID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMetricsUpdate, err)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Hour.Before(stats[j].Hour) })

	var bulletins, votes int64
	var lastActivity time.Time
	for _, s := range stats {
		bulletins += s.BulletinsIssued
		votes += s.VotesCast
		if s.TransactionCount > 0 && s.Hour.After(lastActivity) {
			lastActivity = s.Hour
		}
	}
	rate := participationRate(votes, constituency.RegisteredVoters)

	report := c.detectAnomalies(stats, rate, constituency.RegisteredVoters)

	if err := c.writeBucketAnomalies(ctx, stats, report.perBucket); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMetricsUpdate, err)
	}

	for attempt := 0; ; attempt++ {
		constituency.BulletinsIssued = bulletins
		constituency.VotesCast = votes
		constituency.ParticipationRate = rate
		constituency.AnomalyScore = report.score
		constituency.AnomalyCount = report.count
		if !lastActivity.IsZero() {
			constituency.LastActivity = lastActivity
		}

		err = c.constituencies.UpdateMetrics(ctx, constituency)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= versionRetries {
			return fmt.Errorf("%w: %v", domain.ErrMetricsUpdate, err)
		}
		constituency, err = c.constituencies.GetByID(ctx, constituencyID)
		if err != nil || constituency == nil {
			return fmt.Errorf("%w: reload after conflict: %v", domain.ErrMetricsUpdate, err)
		}
	}

	if err := c.updateElection(ctx, constituency.ElectionID); err != nil {
		return err
	}

	c.logger.Debugw("Recalculated constituency metrics",
		"constituency", constituencyID,
		"bulletins", bulletins,
		"votes", votes,
		"participation", rate,
		"anomalies", report.count,
	)
	return nil
}

// detectAnomalies applies the three rules. Votes exceeding bulletins in a
// bucket is critical; a vote velocity above the configured multiple of
// the trailing average is a warning spike; cumulative participation below
// the lower bound is a constituency-level warning.
func (c *MetricsCalculator) detectAnomalies(stats []domain.HourlyStat, rate float64, registeredVoters int64) anomalyReport {
	report := anomalyReport{perBucket: make(map[time.Time]int64)}

	// The trailing average counts only hours with activity; quiet hours
	// would otherwise drag it down and make normal traffic after a lull
	// read as a spike.
	var trailingSum float64
	var activeHours int
	for _, s := range stats {
		if s.VotesCast > s.BulletinsIssued {
			report.perBucket[s.Hour]++
			report.count++
			report.score += c.policy.VotesExceedBulletinsWeight
			metrics.RecordAnomaly(ruleVotesExceedBulletins)
		}
		if activeHours > 0 {
			trailingAvg := trailingSum / float64(activeHours)
			if trailingAvg > 0 && s.VoteVelocity > c.policy.VelocitySpikeMultiplier*trailingAvg {
				report.perBucket[s.Hour]++
				report.count++
				report.score += c.policy.VelocitySpikeWeight
				metrics.RecordAnomaly(ruleVelocitySpike)
			}
		}
		if s.TransactionCount > 0 {
			trailingSum += s.VoteVelocity
			activeHours++
		}
	}

	if len(stats) > 0 && registeredVoters > 0 && rate < c.policy.MinParticipationRate {
		report.count++
		report.score += c.policy.LowParticipationWeight
		report.lowTurnout = true
		metrics.RecordAnomaly(ruleLowParticipation)
	}

	return report
}

func (c *MetricsCalculator) writeBucketAnomalies(ctx context.Context, stats []domain.HourlyStat, perBucket map[time.Time]int64) error {
	var changed []domain.HourlyStat
	for _, s := range stats {
		if count := perBucket[s.Hour]; count != s.AnomalyCount {
			s.AnomalyCount = count
			s.UpdatedAt = time.Now()
			changed = append(changed, s)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	return c.stats.UpsertBatch(ctx, changed)
}

// updateElection recomputes election-level cumulative metrics from all of
// the election's hourly rows. The result is a pure function of the rows,
// so concurrent writers converge on the same values.
func (c *MetricsCalculator) updateElection(ctx context.Context, electionID string) error {
	election, err := c.elections.GetByID(ctx, electionID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMetricsUpdate, err)
	}
	if election == nil {
		return nil
	}

	stats, err := c.stats.ListByElection(ctx, electionID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMetricsUpdate, err)
	}

	var bulletins, votes int64
	for _, s := range stats {
		bulletins += s.BulletinsIssued
		votes += s.VotesCast
	}
	election.BulletinsIssued = bulletins
	election.VotesCast = votes
	election.ParticipationRate = participationRate(votes, election.RegisteredVoters)
	election.UpdatedAt = time.Now()

	if err := c.elections.UpdateMetrics(ctx, election); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMetricsUpdate, err)
	}
	return nil
}

// Query assembles the metrics view served to callers, re-bucketing the
// hourly rows into the requested granularity. Granularity is a parameter,
// not a separate code path.
func (c *MetricsCalculator) Query(ctx context.Context, constituencyID string, granularity domain.Granularity, from, to time.Time) (*domain.ConstituencyMetrics, error) {
	constituency, err := c.constituencies.GetByID(ctx, constituencyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMetricsUpdate, err)
	}
	if constituency == nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrMetricsUpdate, constituencyID, domain.ErrConstituencyNotFound)
	}

	stats, err := c.stats.ListByConstituency(ctx, constituencyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMetricsUpdate, err)
	}

	result := &domain.ConstituencyMetrics{
		ConstituencyID:    constituency.ID,
		ElectionID:        constituency.ElectionID,
		BulletinsIssued:   constituency.BulletinsIssued,
		VotesCast:         constituency.VotesCast,
		RegisteredVoters:  constituency.RegisteredVoters,
		ParticipationRate: constituency.ParticipationRate,
		AnomalyScore:      constituency.AnomalyScore,
		AnomalyCount:      constituency.AnomalyCount,
		Granularity:       granularity,
		Buckets:           rebucket(stats, granularity, from, to),
	}
	return result, nil
}

func rebucket(stats []domain.HourlyStat, granularity domain.Granularity, from, to time.Time) []domain.MetricsBucket {
	width := granularity.Duration()
	byStart := make(map[time.Time]*domain.MetricsBucket)

	for _, s := range stats {
		if !from.IsZero() && s.Hour.Before(from) {
			continue
		}
		if !to.IsZero() && !s.Hour.Before(to) {
			continue
		}
		start := s.Hour.Truncate(width)
		b, ok := byStart[start]
		if !ok {
			b = &domain.MetricsBucket{Start: start}
			byStart[start] = b
		}
		b.BulletinsIssued += s.BulletinsIssued
		b.VotesCast += s.VotesCast
		b.TransactionCount += s.TransactionCount
		b.AnomalyCount += s.AnomalyCount
	}

	buckets := make([]domain.MetricsBucket, 0, len(byStart))
	for _, b := range byStart {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	return buckets
}
