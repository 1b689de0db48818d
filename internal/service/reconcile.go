package service

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/bug-hunting/internal/repository"
)

// Drift is a user whose stats disagree with the ledger.
type Drift struct {
	UserID       string `json:"user_id"`
	StatsSolved  int    `json:"stats_solved"`
	LedgerSolved int    `json:"ledger_solved"`
	StatsPoints  int    `json:"stats_points"`
	LedgerPoints int    `json:"ledger_points"`
}

// StatsReconciler checks bugs_solved and points_earned against the points
// ledger and can rewrite them from it.
type StatsReconciler struct {
	db       *sql.DB
	payments *repository.PointsPaymentRepo
	stats    *repository.StatsRepo
	log      zerolog.Logger
	now      func() time.Time
}

// NewStatsReconciler returns a reconciler over the ledger and stats tables.
func NewStatsReconciler(db *sql.DB, payments *repository.PointsPaymentRepo, stats *repository.StatsRepo, log zerolog.Logger) *StatsReconciler {
	return &StatsReconciler{
		db:       db,
		payments: payments,
		stats:    stats,
		log:      log.With().Str("component", "reconcile").Logger(),
		now:      time.Now,
	}
}

// Verify lists every user whose stats differ from the ledger, ordered by
// user id.  An empty result means the aggregate invariant holds.  Both
// tables are read in one read-only transaction so an award committing in
// between is seen by both reads or by neither.
func (r *StatsReconciler) Verify(ctx context.Context) ([]Drift, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, storageErr("verify: begin", err)
	}
	defer func() { _ = tx.Rollback() }()
	totals, err := r.payments.TotalsTx(ctx, tx)
	if err != nil {
		return nil, storageErr("ledger totals", err)
	}
	rows, err := r.stats.ListTx(ctx, tx)
	if err != nil {
		return nil, storageErr("list stats", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("verify: commit", err)
	}
	var out []Drift
	seen := make(map[string]bool, len(rows))
	for _, st := range rows {
		seen[st.UserID] = true
		t := totals[st.UserID]
		if st.BugsSolved != t.Payments || st.PointsEarned != t.Points {
			out = append(out, Drift{st.UserID, st.BugsSolved, t.Payments, st.PointsEarned, t.Points})
		}
	}
	for userID, t := range totals {
		if !seen[userID] {
			out = append(out, Drift{UserID: userID, LedgerSolved: t.Payments, LedgerPoints: t.Points})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if len(out) > 0 {
		r.log.Warn().Int("users", len(out)).Msg("stats drift from ledger")
	} else {
		r.log.Debug().Msg("stats match ledger")
	}
	return out, nil
}

// Rebuild rewrites the drifted users' solved and points counters from the
// ledger in one transaction and returns how many users changed.  Each row
// is recomputed from the ledger at write time, not from the Verify
// snapshot, so awards landing after Verify are kept.
func (r *StatsReconciler) Rebuild(ctx context.Context) (int, error) {
	drift, err := r.Verify(ctx)
	if err != nil || len(drift) == 0 {
		return 0, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("rebuild: begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	now := r.now().UTC()
	for _, d := range drift {
		if err := r.stats.RebuildFromLedgerTx(ctx, tx, d.UserID, now); err != nil {
			return 0, storageErr("rebuild: write stats", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("rebuild: commit", err)
	}
	committed = true
	r.log.Info().Int("users", len(drift)).Msg("stats rebuilt from ledger")
	return len(drift), nil
}
