package updater

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler refreshes all providers on a fixed interval until the context is
// cancelled.
type Scheduler struct {
	cron        *cron.Cron
	updater     *Updater
	tickTimeout time.Duration
	logger      *zap.Logger
}

// NewScheduler creates a scheduler running the updater every interval. Each
// tick is bounded by a budget derived from the provider request timeout.
func NewScheduler(u *Updater, interval, requestTimeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}
	if requestTimeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive, got %s", requestTimeout)
	}

	s := &Scheduler{
		cron:        cron.New(),
		updater:     u,
		tickTimeout: tickBudget(requestTimeout),
		logger:      logger,
	}

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("register update task: %w", err)
	}

	return s, nil
}

// Run starts the schedule, performs one refresh immediately, and blocks
// until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("rates scheduler started")
	s.tick()
	s.cron.Start()

	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("rates scheduler stopped")

	return ctx.Err()
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.tickTimeout)
	defer cancel()

	if _, err := s.updater.Run(ctx, ""); err != nil {
		s.logger.Error("scheduled rates update failed", zap.Error(err))
	}
}

// tickBudget covers three fetch attempts per provider plus the backoff
// between them.
func tickBudget(requestTimeout time.Duration) time.Duration {
	return 3*requestTimeout + 5*time.Second
}
