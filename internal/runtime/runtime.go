// Package runtime is the long-lived agent-side process: it keeps the
// transcript syncer running and reports coordination health on a cron
// cadence. The governor hook is a separate short-lived invocation.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
	"golang.org/x/sync/errgroup"

	"github.com/trinsiklabs/onelist/internal/config"
	"github.com/trinsiklabs/onelist/internal/coord"
	"github.com/trinsiklabs/onelist/internal/syncer"
)

// healthCadence is the cron expression for health lines: top of every hour.
const healthCadence = "0 * * * *"

// Runtime bundles the agent-side background workers.
type Runtime struct {
	cfg    *config.Config
	coord  *coord.Store
	syncer *syncer.Syncer
	gron   *gronx.Gronx
}

// New assembles the runtime. syncer may be nil when sync is disabled.
func New(cfg *config.Config, cs *coord.Store, sync *syncer.Syncer) *Runtime {
	return &Runtime{cfg: cfg, coord: cs, syncer: sync, gron: gronx.New()}
}

// Run blocks until ctx is done or a worker fails.
func (r *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if r.syncer != nil {
		g.Go(func() error { return r.syncer.Run(ctx) })
	}
	g.Go(func() error { return r.healthLoop(ctx) })

	slog.Info("runtime started", "agent", r.cfg.Agent.Kind, "sync", r.syncer != nil)
	return g.Wait()
}

// healthLoop emits one line at startup, then on the cron cadence. The
// minute tick only checks whether the expression is due.
func (r *Runtime) healthLoop(ctx context.Context) error {
	r.logHealth()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			due, err := r.gron.IsDue(healthCadence, now)
			if err == nil && due {
				r.logHealth()
			}
		}
	}
}

func (r *Runtime) logHealth() {
	stats, tracked := r.coord.SnapshotStats()
	slog.Info("health",
		"injections", stats.Injections,
		"retrievals", stats.Retrievals,
		"fallbacks", stats.Fallbacks,
		"searches", stats.Searches,
		"search_hits", stats.SearchHits,
		"appends", stats.Appends,
		"failures", stats.Failures,
		"tracked_sessions", tracked,
		"circuit_open", r.coord.CircuitOpen(),
	)
}
