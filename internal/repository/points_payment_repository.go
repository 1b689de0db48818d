package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/iliyamo/bug-hunting/internal/model"
)

// PointsPaymentRepo is the append-only points ledger.  It has no update
// or delete methods.
type PointsPaymentRepo struct {
	db *sql.DB
}

func NewPointsPaymentRepo(db *sql.DB) *PointsPaymentRepo { return &PointsPaymentRepo{db: db} }

const paymentColumns = `id, hunting_session_id, user_id, bug_id, points, breakdown, reason, created_at`

// CreateTx appends p to the ledger.  A second entry for the same session
// violates the unique index and is reported as ErrConflict.
func (r *PointsPaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.PointsPayment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	breakdown, err := json.Marshal(p.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	const q = `INSERT INTO points_payments (` + paymentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		p.ID, p.HuntingSessionID, p.UserID, p.BugID, p.Points, string(breakdown), p.Reason, p.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// ListByUser returns the user's ledger entries, newest first.
func (r *PointsPaymentRepo) ListByUser(ctx context.Context, userID string) ([]model.PointsPayment, error) {
	return r.list(ctx, `WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
}

// ListBySession returns the ledger entries for one session (zero or one).
func (r *PointsPaymentRepo) ListBySession(ctx context.Context, sessionID string) ([]model.PointsPayment, error) {
	return r.list(ctx, `WHERE hunting_session_id = ? ORDER BY created_at, id`, sessionID)
}

func (r *PointsPaymentRepo) list(ctx context.Context, tail string, args ...any) ([]model.PointsPayment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+paymentColumns+` FROM points_payments `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.PointsPayment, 0)
	for rows.Next() {
		var (
			p         model.PointsPayment
			breakdown string
		)
		if err := rows.Scan(&p.ID, &p.HuntingSessionID, &p.UserID, &p.BugID, &p.Points, &breakdown, &p.Reason, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(breakdown), &p.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown of payment %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LedgerTotal is the per-user aggregate of ledger rows.
type LedgerTotal struct {
	Payments int
	Points   int
}

// Totals sums the ledger per user.
func (r *PointsPaymentRepo) Totals(ctx context.Context) (map[string]LedgerTotal, error) {
	return ledgerTotals(ctx, r.db)
}

// TotalsTx is Totals inside the caller's transaction.
func (r *PointsPaymentRepo) TotalsTx(ctx context.Context, tx *sql.Tx) (map[string]LedgerTotal, error) {
	return ledgerTotals(ctx, tx)
}

func ledgerTotals(ctx context.Context, q dbtx) (map[string]LedgerTotal, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id, COUNT(*), COALESCE(SUM(points), 0) FROM points_payments GROUP BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]LedgerTotal)
	for rows.Next() {
		var (
			userID string
			t      LedgerTotal
		)
		if err := rows.Scan(&userID, &t.Payments, &t.Points); err != nil {
			return nil, err
		}
		out[userID] = t
	}
	return out, rows.Err()
}
