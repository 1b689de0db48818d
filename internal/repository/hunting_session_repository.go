package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bug-hunting/internal/model"
)

// HuntingSessionRepo persists hunting sessions.  Rows are never deleted;
// the award columns are written exactly once by MarkAwardedTx.
type HuntingSessionRepo struct {
	db *sql.DB
}

// NewHuntingSessionRepo returns a HuntingSessionRepo bound to db.
func NewHuntingSessionRepo(db *sql.DB) *HuntingSessionRepo { return &HuntingSessionRepo{db: db} }

const sessionColumns = `id, bug_id, user_id, started_at, repro_text, pr_link, assigned_module_lead, points_awarded, awarded_at`

// CreateTx inserts s in the started state.  The caller must commit or
// roll back the transaction.
func (r *HuntingSessionRepo) CreateTx(ctx context.Context, tx *sql.Tx, s *model.HuntingSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Award = nil
	const q = `INSERT INTO hunting_sessions
	           (id, bug_id, user_id, started_at, repro_text, pr_link, assigned_module_lead, accepted_by_lead)
	           VALUES (?, ?, ?, ?, ?, ?, ?, 0)`
	_, err := tx.ExecContext(ctx, q,
		s.ID, s.BugID, s.UserID, s.StartedAt, s.ReproText, nullString(s.PRLink), nullString(s.AssignedModuleLead))
	return err
}

// GetByID returns a session or ErrNotFound.
func (r *HuntingSessionRepo) GetByID(ctx context.Context, id string) (model.HuntingSession, error) {
	return getSession(ctx, r.db, id)
}

// GetByIDTx is GetByID inside the caller's transaction.
func (r *HuntingSessionRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (model.HuntingSession, error) {
	return getSession(ctx, tx, id)
}

// MarkAwardedTx records the award on a session that has not been awarded
// yet.  The precondition is part of the UPDATE, so of two concurrent
// callers at most one sees true.
func (r *HuntingSessionRepo) MarkAwardedTx(ctx context.Context, tx *sql.Tx, id string, points int, at time.Time) (bool, error) {
	const q = `UPDATE hunting_sessions
	           SET accepted_by_lead = 1, points_awarded = ?, awarded_at = ?
	           WHERE id = ? AND points_awarded IS NULL AND awarded_at IS NULL`
	res, err := tx.ExecContext(ctx, q, points, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// HasAwardedForBugTx reports whether any session of bugID was awarded.
func (r *HuntingSessionRepo) HasAwardedForBugTx(ctx context.Context, tx *sql.Tx, bugID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM hunting_sessions WHERE bug_id = ? AND points_awarded IS NOT NULL`, bugID).Scan(&n)
	return n > 0, err
}

// SessionFilter narrows List.  Empty fields match everything.
type SessionFilter struct {
	BugID  string
	UserID string
	State  model.SessionState
	Limit  int
}

// List returns sessions matching f, newest first.
func (r *HuntingSessionRepo) List(ctx context.Context, f SessionFilter) ([]model.HuntingSession, error) {
	var (
		where []string
		args  []any
	)
	if f.BugID != "" {
		where = append(where, "bug_id = ?")
		args = append(args, f.BugID)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	switch f.State {
	case model.SessionStarted:
		where = append(where, "points_awarded IS NULL")
	case model.SessionAwarded:
		where = append(where, "points_awarded IS NOT NULL")
	}
	q := `SELECT ` + sessionColumns + ` FROM hunting_sessions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC, id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.HuntingSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getSession(ctx context.Context, q dbtx, id string) (model.HuntingSession, error) {
	s, err := scanSession(q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM hunting_sessions WHERE id = ?`, id))
	if err != nil {
		return model.HuntingSession{}, notFound(err)
	}
	return s, nil
}

func scanSession(row rowScanner) (model.HuntingSession, error) {
	var (
		s         model.HuntingSession
		prLink    sql.NullString
		lead      sql.NullString
		points    sql.NullInt64
		awardedAt sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.BugID, &s.UserID, &s.StartedAt, &s.ReproText, &prLink, &lead, &points, &awardedAt); err != nil {
		return model.HuntingSession{}, err
	}
	s.PRLink = stringPtr(prLink)
	s.AssignedModuleLead = stringPtr(lead)
	if points.Valid && awardedAt.Valid {
		s.Award = &model.SessionAward{Points: int(points.Int64), At: awardedAt.Time.UTC()}
	}
	return s, nil
}
