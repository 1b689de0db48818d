// Package jobs runs periodic background work on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/iliyamo/bug-hunting/internal/config"
	"github.com/iliyamo/bug-hunting/internal/service"
)

type reconciler interface {
	Verify(ctx context.Context) ([]service.Drift, error)
	Rebuild(ctx context.Context) (int, error)
}

// Cron schedules the stats reconcile job.
type Cron struct {
	cfg     config.JobsConfig
	log     zerolog.Logger
	rec     reconciler
	c       *cron.Cron
	running sync.Mutex
}

// NewCron parses the schedule and registers the reconcile job.  Call
// Start to begin running it.
func NewCron(cfg config.JobsConfig, log zerolog.Logger, rec reconciler) (*Cron, error) {
	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		return nil, fmt.Errorf("load TZ %q: %w", cfg.TZ, err)
	}
	c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
	cr := &Cron{cfg: cfg, log: log.With().Str("component", "cron").Logger(), rec: rec, c: c}
	if _, err := c.AddFunc(cfg.ReconcileCron, cr.reconcile); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", cfg.ReconcileCron, err)
	}
	return cr, nil
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop halts scheduling and waits for a running job to finish.
func (cr *Cron) Stop() { <-cr.c.Stop().Done() }

func (cr *Cron) reconcile() {
	// skip the tick when the previous run is still going
	if !cr.running.TryLock() {
		cr.log.Info().Msg("cron: reconcile still running, skipping")
		return
	}
	defer cr.running.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if cr.cfg.ReconcileRepair {
		n, err := cr.rec.Rebuild(ctx)
		if err != nil {
			cr.log.Error().Err(err).Msg("cron: stats rebuild failed")
			return
		}
		cr.log.Info().Int("users", n).Msg("cron: stats reconciled")
		return
	}
	drift, err := cr.rec.Verify(ctx)
	if err != nil {
		cr.log.Error().Err(err).Msg("cron: stats verify failed")
		return
	}
	for _, d := range drift {
		cr.log.Warn().
			Str("user_id", d.UserID).
			Int("stats_points", d.StatsPoints).
			Int("ledger_points", d.LedgerPoints).
			Int("stats_solved", d.StatsSolved).
			Int("ledger_solved", d.LedgerSolved).
			Msg("cron: stats drift")
	}
}
