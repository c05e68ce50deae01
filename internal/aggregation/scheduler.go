package aggregation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/config"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
	"github.com/Ludentes/RooDemo-sub001/pkg/metrics"
	"github.com/Ludentes/RooDemo-sub001/pkg/retry"
)

// deadTaskLimit bounds the in-memory dead task log; older entries are
// dropped first.
const deadTaskLimit = 256

// aggregationWindow is how far back a task without an explicit window
// re-aggregates. Scheduled and manual triggers cover recent activity;
// ingestion tasks carry the export file's own hour range.
const aggregationWindow = 24 * time.Hour

// Scheduler owns the update queue and the workers draining it. Triggers
// only enqueue; all aggregation and metric work happens on the worker
// pool, so ingestion latency never depends on calculation cost.
type Scheduler struct {
	aggregator     *HourlyAggregator
	calculator     *MetricsCalculator
	constituencies domain.ConstituencyRepository
	cache          Cache
	cfg            config.Scheduler
	logger         *logger.Logger

	tasks chan domain.UpdateTask
	pool  pond.Pool
	cron  *cron.Cron

	mu      sync.Mutex
	started bool
	done    chan struct{}

	deadMu sync.Mutex
	dead   []domain.DeadTask
}

func NewScheduler(
	aggregator *HourlyAggregator,
	calculator *MetricsCalculator,
	constituencies domain.ConstituencyRepository,
	cache Cache,
	cfg config.Scheduler,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		aggregator:     aggregator,
		calculator:     calculator,
		constituencies: constituencies,
		cache:          cache,
		cfg:            cfg,
		logger:         log,
		tasks:          make(chan domain.UpdateTask, cfg.QueueSize),
		pool:           pond.NewPool(cfg.Workers, pond.WithQueueSize(cfg.QueueSize)),
	}
}

// Enqueue adds a task without blocking. A full queue is reported to the
// caller; dropping silently would hide backpressure.
func (s *Scheduler) Enqueue(task domain.UpdateTask) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	select {
	case s.tasks <- task:
		metrics.QueueDepth.Set(float64(len(s.tasks)))
		return nil
	default:
		return fmt.Errorf("%w: depth %d", domain.ErrQueueFull, len(s.tasks))
	}
}

// DeadTasks returns a snapshot of tasks that exhausted their retries.
func (s *Scheduler) DeadTasks() []domain.DeadTask {
	s.deadMu.Lock()
	defer s.deadMu.Unlock()
	out := make([]domain.DeadTask, len(s.dead))
	copy(out, s.dead)
	return out
}

// Start launches the dispatcher and the periodic trigger. Calling Start
// on a running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.done = make(chan struct{})
	go s.dispatch()

	s.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger{s.logger})))
	if _, err := s.cron.AddFunc(s.cfg.CronSpec, s.enqueueActive); err != nil {
		close(s.done)
		return fmt.Errorf("invalid cron spec %q: %w", s.cfg.CronSpec, err)
	}
	s.cron.Start()

	s.started = true
	s.logger.Infow("Scheduler started", "workers", s.cfg.Workers, "queue_size", s.cfg.QueueSize, "cron", s.cfg.CronSpec)
	return nil
}

// Stop halts the periodic trigger, stops accepting queued work, and
// waits for in-flight tasks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}

	s.cron.Stop()
	close(s.done)
	s.pool.StopAndWait()
	s.started = false
	s.logger.Infow("Scheduler stopped")
}

func (s *Scheduler) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case task := <-s.tasks:
			metrics.QueueDepth.Set(float64(len(s.tasks)))
			s.pool.Submit(func() {
				s.execute(task)
			})
		}
	}
}

// enqueueActive schedules a refresh for every constituency of an active
// election. Queue-full here is expected under load and only logged; the
// next tick retries.
func (s *Scheduler) enqueueActive() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TaskTimeout)
	defer cancel()

	constituencies, err := s.constituencies.ListActive(ctx)
	if err != nil {
		s.logger.Errorw("Periodic trigger failed to list constituencies", "error", err)
		return
	}

	for _, c := range constituencies {
		err := s.Enqueue(domain.UpdateTask{
			Trigger:        domain.TriggerScheduled,
			ConstituencyID: c.ID,
			ElectionID:     c.ElectionID,
		})
		if err != nil {
			s.logger.Warnw("Periodic trigger dropped task", "constituency", c.ID, "error", err)
		}
	}
}

func (s *Scheduler) execute(task domain.UpdateTask) {
	retryCfg := retry.Config{
		MaxRetries:    s.cfg.MaxRetries,
		InitialDelay:  s.cfg.RetryDelay,
		MaxDelay:      s.cfg.MaxRetryDelay,
		Multiplier:    2.0,
		JitterEnabled: true,
	}

	err := retry.WithBackoff(context.Background(), retryCfg, s.logger, "update task", func() error {
		task.Attempts++
		if task.Attempts > 1 {
			metrics.TaskRetries.Inc()
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TaskTimeout)
		defer cancel()
		return s.run(ctx, task)
	})
	if err != nil {
		metrics.RecordTask(string(task.Trigger), "dead")
		s.bury(task, err)
		return
	}
	metrics.RecordTask(string(task.Trigger), "success")
}

func (s *Scheduler) run(ctx context.Context, task domain.UpdateTask) error {
	from, to := task.WindowFrom, task.WindowTo
	if !to.After(from) {
		to = time.Now().UTC()
		from = to.Add(-aggregationWindow)
	}

	stats, err := s.aggregator.Aggregate(ctx, task.ConstituencyID, from, to)
	if err != nil {
		return err
	}
	if err := s.calculator.Recalculate(ctx, task.ConstituencyID); err != nil {
		return err
	}

	electionID := task.ElectionID
	if electionID == "" && len(stats) > 0 {
		electionID = stats[0].ElectionID
	}
	s.cache.InvalidateTag(ctx, ConstituencyTag(task.ConstituencyID))
	if electionID != "" {
		s.cache.InvalidateTag(ctx, ElectionTag(electionID))
	}
	return nil
}

func (s *Scheduler) bury(task domain.UpdateTask, err error) {
	s.logger.Errorw("Update task exhausted retries",
		"task", task.ID,
		"trigger", task.Trigger,
		"constituency", task.ConstituencyID,
		"error", err,
	)

	s.deadMu.Lock()
	defer s.deadMu.Unlock()
	s.dead = append(s.dead, domain.DeadTask{
		Task:     task,
		Error:    err.Error(),
		FailedAt: time.Now(),
	})
	if len(s.dead) > deadTaskLimit {
		s.dead = s.dead[len(s.dead)-deadTaskLimit:]
	}
	metrics.DeadTasks.Set(float64(len(s.dead)))
}

// cronLogger adapts the structured logger to the cron.Recover contract.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
