// Package scheduler runs periodic jobs over the engine.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/logger"
	"token-curve-engine/internal/observability"
)

// Source is what the snapshot job reads.
type Source interface {
	Instruments() []string
	Metrics(ctx context.Context, instrument string) (*domain.Metrics, error)
}

// Scheduler publishes instrument metrics to Prometheus on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	source  Source
	metrics *observability.Metrics
	log     *zap.Logger
	ctx     context.Context
	now     func() time.Time
}

// New creates a Scheduler. Jobs run with ctx.
func New(ctx context.Context, source Source, metrics *observability.Metrics, log *zap.Logger) *Scheduler {
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(),
		source:  source,
		metrics: metrics,
		log:     log,
		ctx:     ctx,
		now:     time.Now,
	}
}

// Register schedules the snapshot job. spec is a standard five-field cron
// expression or a descriptor such as "@every 30s".
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.snapshotTask); err != nil {
		return fmt.Errorf("register snapshot task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) snapshotTask() {
	s.Snapshot(s.ctx)
}

// Summary describes one snapshot run.
type Summary struct {
	Instruments int
	Graduated   int
	Failed      int
}

// Snapshot refreshes the per-instrument gauges once.
func (s *Scheduler) Snapshot(ctx context.Context) Summary {
	ids := s.source.Instruments()
	sort.Strings(ids)

	var sum Summary
	for _, id := range ids {
		m, err := s.source.Metrics(ctx, id)
		if err != nil {
			sum.Failed++
			logger.WithInstrument(s.log, id).Warn("snapshot instrument failed", zap.Error(err))
			continue
		}
		sum.Instruments++
		if m.IsGraduated {
			sum.Graduated++
		}
		s.metrics.SetInstrument(id,
			m.CurrentPrice.InexactFloat64(),
			m.MarketCap.InexactFloat64(),
			m.GraduationProgress.InexactFloat64(),
			m.Volume24h.InexactFloat64(),
		)
	}

	s.metrics.Instruments.Set(float64(sum.Instruments))
	s.metrics.LastSnapshot.Set(float64(s.now().Unix()))
	s.log.Info("metrics snapshot",
		zap.Int("instruments", sum.Instruments),
		zap.Int("graduated", sum.Graduated),
		zap.Int("failed", sum.Failed),
	)
	return sum
}
