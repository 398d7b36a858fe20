package live

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const DefaultReapInterval = 30 * time.Second

// Reapable is anything with a periodic cleanup pass.
type Reapable interface {
	Reap() int
}

// Reaper runs Reap on a fixed interval, independent of request traffic.
type Reaper struct {
	target   Reapable
	interval time.Duration
	log      *zap.Logger
}

func NewReaper(target Reapable, interval time.Duration, logger *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{target: target, interval: interval, log: logger}
}

// Run blocks until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reaper started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopped")
			return nil
		case <-ticker.C:
			if n := r.target.Reap(); n > 0 {
				r.log.Debug("reap pass", zap.Int("removed", n))
			}
		}
	}
}
