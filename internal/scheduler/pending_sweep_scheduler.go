package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ikkim/tabline-backend/pkg/logger"
)

const (
	DefaultSweepSpec  = "*/15 * * * *"
	DefaultPendingTTL = 24 * time.Hour
)

// PendingSweeper deletes pending links older than a cutoff.
// service.TicketLinkService satisfies it.
type PendingSweeper interface {
	SweepPending(olderThan time.Duration) (int64, error)
}

// PendingSweepScheduler removes verification requests nobody answered.
type PendingSweepScheduler struct {
	cron    *cron.Cron
	sweeper PendingSweeper
	spec    string
	ttl     time.Duration
}

func NewPendingSweepScheduler(sweeper PendingSweeper, spec string, ttl time.Duration) *PendingSweepScheduler {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &PendingSweepScheduler{
		cron:    cron.New(),
		sweeper: sweeper,
		spec:    spec,
		ttl:     ttl,
	}
}

// Start registers the sweep job and starts the cron runner.
func (s *PendingSweepScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.RunOnce); err != nil {
		logger.Error("Failed to add cron job for pending sweep", err, map[string]interface{}{
			"spec": s.spec,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Pending sweep scheduler started", map[string]interface{}{
		"spec":        s.spec,
		"pending_ttl": s.ttl.String(),
	})
	return nil
}

func (s *PendingSweepScheduler) RunOnce() {
	n, err := s.sweeper.SweepPending(s.ttl)
	if err != nil {
		logger.Error("Scheduled pending sweep failed", err)
		return
	}
	logger.Debug("Scheduled pending sweep finished", map[string]interface{}{
		"deleted": n,
	})
}

// Stop waits for a running sweep to finish.
func (s *PendingSweepScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Pending sweep scheduler stopped")
}
