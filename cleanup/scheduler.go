package cleanup

import (
	"context"
	"time"

	"github.com/mkoval/formgate/log"
)

// Start runs the engine on its schedule until ctx is cancelled. Each cycle
// sleeps until the configured hour of day, advancing in interval-day steps;
// an unexpected error inside a run is logged and retried after a fixed
// backoff instead of killing the loop.
func (e *Engine) Start(ctx context.Context) {
	if !e.cfg.CleanupEnabled {
		log.Info("cleanup: disabled by configuration")
		return
	}

	log.Infof("cleanup: scheduled every %dd at %02d:00", e.cfg.CleanupIntervalDays, e.cfg.CleanupRunHour)

	for {
		next := e.nextRun()
		wait := next.Sub(e.now())
		log.Infof("cleanup: next run at %s (in %.1fh)", next.Format(time.RFC3339), wait.Hours())

		if !sleep(ctx, wait) {
			log.Info("cleanup: shutting down")
			return
		}

		if _, err := e.Run(ctx); err != nil {
			if ctx.Err() != nil {
				log.Info("cleanup: shutting down")
				return
			}
			log.Errorf("cleanup.run: %s", err)
			if !sleep(ctx, errBackoff) {
				log.Info("cleanup: shutting down")
				return
			}
		}
	}
}

// nextRun is today at the configured hour, or interval-days later when that
// hour already passed.
func (e *Engine) nextRun() time.Time {
	now := e.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), e.cfg.CleanupRunHour, 0, 0, 0, now.Location())
	if now.Hour() >= e.cfg.CleanupRunHour {
		next = next.AddDate(0, 0, e.cfg.CleanupIntervalDays)
	}
	return next
}

// sleep waits for d or until ctx is cancelled, reporting whether the full
// wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
