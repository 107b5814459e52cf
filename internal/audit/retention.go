package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"wabridge/internal/domain"
)

const purgeTimeout = time.Minute

// Retention periodically deletes journal entries older than the configured
// number of days.
type Retention struct {
	journal domain.Journal
	keep    time.Duration
	cron    *cron.Cron
	logger  *slog.Logger
	now     func() time.Time
}

// NewRetention validates schedule (standard cron syntax or a descriptor such
// as @daily) and registers the purge job. Call Start to begin running it.
func NewRetention(journal domain.Journal, days int, schedule string, logger *slog.Logger) (*Retention, error) {
	if days < 1 {
		return nil, fmt.Errorf("retention must be at least one day, got %d", days)
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retention{
		journal: journal,
		keep:    time.Duration(days) * 24 * time.Hour,
		cron:    cron.New(),
		logger:  logger,
		now:     time.Now,
	}
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Retention) Start() {
	r.cron.Start()
	r.logger.Info("journal retention started", "keep", r.keep)
}

// Stop halts the scheduler and waits for a running purge to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// PurgeNow deletes everything older than the retention window.
func (r *Retention) PurgeNow(ctx context.Context) (int64, error) {
	return r.journal.Purge(ctx, r.now().Add(-r.keep))
}

func (r *Retention) run() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	n, err := r.PurgeNow(ctx)
	if err != nil {
		r.logger.Warn("journal purge failed", "err", err)
		return
	}
	if n > 0 {
		r.logger.Info("journal purged", "deleted", n)
	}
}
