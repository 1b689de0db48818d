package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/bug-hunting/internal/database"
	"github.com/iliyamo/bug-hunting/internal/model"
)

// StatsRepo owns every write to user_stats.  Counters only move through
// RecordIdentificationTx (session start), RecordSolveTx (award) and
// RebuildFromLedgerTx (operator reconciliation); rows are created lazily
// by whichever comes first.
type StatsRepo struct {
	db  *sql.DB
	sql statsStatements
}

type statsStatements struct {
	identify string
	solve    string
	rebuild  string
}

var statsDialects = map[database.Driver]statsStatements{
	database.MySQL: {
		identify: `INSERT INTO user_stats (user_id, bugs_solved, bugs_identified, active_bugs, points_earned, last_updated)
		           VALUES (?, 0, 1, 1, 0, ?)
		           ON DUPLICATE KEY UPDATE bugs_identified = bugs_identified + 1,
		                                   active_bugs = active_bugs + 1,
		                                   last_updated = VALUES(last_updated)`,
		solve: `INSERT INTO user_stats (user_id, bugs_solved, bugs_identified, active_bugs, points_earned, last_updated)
		        VALUES (?, 1, 0, 0, ?, ?)
		        ON DUPLICATE KEY UPDATE bugs_solved = bugs_solved + 1,
		                                points_earned = points_earned + VALUES(points_earned),
		                                last_updated = VALUES(last_updated)`,
		rebuild: `INSERT INTO user_stats (user_id, bugs_solved, bugs_identified, active_bugs, points_earned, last_updated)
		          SELECT ?, COUNT(*), 0, 0, COALESCE(SUM(points), 0), ? FROM points_payments WHERE user_id = ?
		          ON DUPLICATE KEY UPDATE bugs_solved = VALUES(bugs_solved),
		                                  points_earned = VALUES(points_earned),
		                                  last_updated = VALUES(last_updated)`,
	},
	database.SQLite: {
		identify: `INSERT INTO user_stats (user_id, bugs_solved, bugs_identified, active_bugs, points_earned, last_updated)
		           VALUES (?, 0, 1, 1, 0, ?)
		           ON CONFLICT (user_id) DO UPDATE SET bugs_identified = bugs_identified + 1,
		                                               active_bugs = active_bugs + 1,
		                                               last_updated = excluded.last_updated`,
		solve: `INSERT INTO user_stats (user_id, bugs_solved, bugs_identified, active_bugs, points_earned, last_updated)
		        VALUES (?, 1, 0, 0, ?, ?)
		        ON CONFLICT (user_id) DO UPDATE SET bugs_solved = bugs_solved + 1,
		                                            points_earned = points_earned + excluded.points_earned,
		                                            last_updated = excluded.last_updated`,
		rebuild: `INSERT INTO user_stats (user_id, bugs_solved, bugs_identified, active_bugs, points_earned, last_updated)
		          SELECT ?, COUNT(*), 0, 0, COALESCE(SUM(points), 0), ? FROM points_payments WHERE user_id = ?
		          ON CONFLICT (user_id) DO UPDATE SET bugs_solved = excluded.bugs_solved,
		                                              points_earned = excluded.points_earned,
		                                              last_updated = excluded.last_updated`,
	},
}

// NewStatsRepo returns a StatsRepo speaking driver's upsert syntax.
func NewStatsRepo(db *sql.DB, driver database.Driver) *StatsRepo {
	stmts, ok := statsDialects[driver]
	if !ok {
		panic("unsupported driver passed to NewStatsRepo: " + string(driver))
	}
	return &StatsRepo{db: db, sql: stmts}
}

// RecordIdentificationTx counts a session start: one more bug identified
// and one more active bug.
func (r *StatsRepo) RecordIdentificationTx(ctx context.Context, tx *sql.Tx, userID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, r.sql.identify, userID, at)
	return err
}

// RecordSolveTx counts an award: one more bug solved and points more
// points earned.  A missing row is created as {solved:1, points}.
func (r *StatsRepo) RecordSolveTx(ctx context.Context, tx *sql.Tx, userID string, points int, at time.Time) error {
	_, err := tx.ExecContext(ctx, r.sql.solve, userID, points, at)
	return err
}

// RebuildFromLedgerTx overwrites bugs_solved and points_earned with the
// user's ledger count and sum.  The ledger is read by the same statement
// that writes the row; on MySQL an INSERT ... SELECT under REPEATABLE READ
// takes shared next-key locks on the ledger rows it reads, so an award
// committing concurrently is either counted or waits.  Identification
// counters are left alone.
func (r *StatsRepo) RebuildFromLedgerTx(ctx context.Context, tx *sql.Tx, userID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, r.sql.rebuild, userID, at, userID)
	return err
}

const statsColumns = `user_id, bugs_solved, bugs_identified, active_bugs, points_earned, last_updated`

// Get returns the stats row of userID or ErrNotFound.
func (r *StatsRepo) Get(ctx context.Context, userID string) (model.UserStats, error) {
	var s model.UserStats
	err := r.db.QueryRowContext(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE user_id = ?`, userID).Scan(
		&s.UserID, &s.BugsSolved, &s.BugsIdentified, &s.ActiveBugs, &s.PointsEarned, &s.LastUpdated)
	return s, notFound(err)
}

// List returns every stats row ordered by user id.
func (r *StatsRepo) List(ctx context.Context) ([]model.UserStats, error) {
	return listStats(ctx, r.db)
}

// ListTx is List inside the caller's transaction.
func (r *StatsRepo) ListTx(ctx context.Context, tx *sql.Tx) ([]model.UserStats, error) {
	return listStats(ctx, tx)
}

func listStats(ctx context.Context, q dbtx) ([]model.UserStats, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+statsColumns+` FROM user_stats ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.UserStats
	for rows.Next() {
		var s model.UserStats
		if err := rows.Scan(&s.UserID, &s.BugsSolved, &s.BugsIdentified, &s.ActiveBugs, &s.PointsEarned, &s.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
