package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/infrastructure/telemetry"
	"github.com/saloneworks/tax-compliance-backend/internal/metrics"
)

// TrackerEvaluator is the slice of the compliance service the batch loop
// needs.
type TrackerEvaluator interface {
	EvaluateTracker(ctx context.Context, trackerID uuid.UUID, asOf time.Time) (*compliance.Result, error)
}

// Config holds the batch loop settings
type Config struct {
	// Schedule is a cron expression, typically nightly off-peak
	Schedule string
	// Workers is the recomputation fan-out width
	Workers int
}

// Service recomputes every tracker on a schedule. Trackers are
// partitioned across a fixed worker pool; one tracker failing never
// stops the run, and optimistic concurrency inside the evaluator keeps
// concurrent payment events safe.
type Service struct {
	evaluator TrackerEvaluator
	trackers  compliance.TrackerRepository
	logger    *zap.Logger
	config    Config

	cron    *cron.Cron
	entryID cron.EntryID
}

// NewService creates the batch recomputation service
func NewService(evaluator TrackerEvaluator, trackers compliance.TrackerRepository, logger *zap.Logger, config Config) *Service {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Service{
		evaluator: evaluator,
		trackers:  trackers,
		logger:    logger,
		config:    config,
		cron:      cron.New(),
	}
}

// Start schedules the recurring run
func (s *Service) Start() error {
	id, err := s.cron.AddFunc(s.config.Schedule, func() {
		ctx := context.Background()
		if _, err := s.Run(ctx, time.Now().UTC()); err != nil {
			s.logger.Error("batch recomputation run failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.entryID = id
	s.cron.Start()

	s.logger.Info("batch recomputation scheduled",
		zap.String("schedule", s.config.Schedule),
		zap.Int("workers", s.config.Workers))
	return nil
}

// Stop halts the schedule and waits for a running job to finish
func (s *Service) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunStats summarizes one batch run
type RunStats struct {
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Run recomputes all trackers once, as of the given date. Failures are
// counted and logged per tracker; the run itself only errors when the
// tracker listing does.
func (s *Service) Run(ctx context.Context, asOf time.Time) (RunStats, error) {
	start := time.Now()
	logger := telemetry.WithTrace(ctx, s.logger)

	ids, err := s.trackers.ListIDs(ctx)
	if err != nil {
		metrics.RecordBatchRun("error", time.Since(start))
		return RunStats{}, err
	}

	work := make(chan uuid.UUID)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)

	for w := 0; w < s.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				if _, err := s.evaluator.EvaluateTracker(ctx, id, asOf); err != nil {
					logger.Warn("tracker recomputation failed",
						zap.String("tracker_id", id.String()),
						zap.Error(err))
					metrics.RecordBatchTracker("error")
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}
				metrics.RecordBatchTracker("ok")
			}
		}()
	}

	canceled := false
	for _, id := range ids {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		select {
		case work <- id:
		case <-ctx.Done():
			canceled = true
		}
		if canceled {
			break
		}
	}
	close(work)
	wg.Wait()

	if canceled {
		metrics.RecordBatchRun("canceled", time.Since(start))
		return RunStats{}, ctx.Err()
	}

	stats := RunStats{
		Total:     len(ids),
		Succeeded: len(ids) - failed,
		Failed:    failed,
		Duration:  time.Since(start),
	}

	status := "ok"
	if failed > 0 {
		status = "partial"
	}
	metrics.RecordBatchRun(status, stats.Duration)

	logger.Info("batch recomputation complete",
		zap.Int("total", stats.Total),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", stats.Duration))

	return stats, nil
}
