package jobs

import (
	"context"
	"time"

	"campreg/internal/logger"
	"campreg/internal/service"
)

// RetryCleanupJob periodically abandons pending retry records that have been
// sitting longer than the configured maximum age, so crashed timers cannot
// leave records pending forever.
type RetryCleanupJob struct {
	retries  *service.RetryService
	interval time.Duration
	maxAge   time.Duration
	ticker   *time.Ticker
	done     chan bool
}

func NewRetryCleanupJob(retries *service.RetryService, interval, maxAge time.Duration) *RetryCleanupJob {
	return &RetryCleanupJob{
		retries:  retries,
		interval: interval,
		maxAge:   maxAge,
		done:     make(chan bool),
	}
}

// Start begins the background job. The first pass runs immediately.
func (j *RetryCleanupJob) Start(ctx context.Context) {
	logger.Get().Info("Starting retry cleanup job",
		"interval", j.interval.String(), "max_age", j.maxAge.String())

	j.ticker = time.NewTicker(j.interval)

	go j.runOnce(ctx)

	go func() {
		for {
			select {
			case <-j.ticker.C:
				go j.runOnce(ctx)
			case <-j.done:
				logger.Get().Info("Retry cleanup job stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the background job.
func (j *RetryCleanupJob) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	close(j.done)
}

func (j *RetryCleanupJob) runOnce(ctx context.Context) {
	cleaned, err := j.retries.CleanupExpiredRetries(ctx, j.maxAge)
	if err != nil {
		logger.Get().Error("Retry cleanup pass failed", "error", err)
		return
	}
	if cleaned > 0 {
		logger.Get().Info("Abandoned expired retry records", "count", cleaned)
	}
}
