package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// refreshTimeout bounds one scheduled refresh, including geocoding lookups.
const refreshTimeout = time.Minute

// Schedule registers a periodic Refresh on a new cron scheduler. The spec is
// a standard cron expression or a descriptor such as "@every 5m". The caller
// owns the scheduler and must Start and Stop it.
func Schedule(spec string, r *Registry, logger *slog.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := r.Refresh(ctx); err != nil {
			logger.Warn("scheduled catalog refresh failed, keeping previous snapshot", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid catalog refresh schedule %q: %w", spec, err)
	}
	return c, nil
}
