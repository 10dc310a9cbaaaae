package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/xiaot623/gogo/consult/internal/logging"
)

// Retention purges expired turns on a cron schedule.
type Retention struct {
	store *Store
	cron  string

	mu      sync.Mutex
	running bool
}

// NewRetention validates cron and returns a retention job for store.
func NewRetention(store *Store, cron string) (*Retention, error) {
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid retention cron %q", cron)
	}
	return &Retention{store: store, cron: cron}, nil
}

// Run schedules purges until ctx is done.
func (r *Retention) Run(ctx context.Context) {
	log := logging.Logger()
	log.Info("retention_enabled", "cron", r.cron)

	for {
		next, err := gronx.NextTickAfter(r.cron, time.Now(), false)
		if err != nil {
			log.Error("retention_nexttick_failed", "cron", r.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			r.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs one purge unless one is already in progress.
func (r *Retention) RunOnce(ctx context.Context) int {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return 0
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	purged, err := r.store.PurgeExpired(ctx)
	if err != nil {
		logging.Logger().Error("retention_run_error", "error", err)
		return 0
	}
	logging.Logger().Info("retention_run_done", "purged", purged)
	return purged
}
