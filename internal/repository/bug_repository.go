package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bug-hunting/internal/model"
)

// BugRepo manages persistence for bugs.  Status changes are written as
// compare-and-swap updates so that concurrent writers never move a bug
// along an edge it is no longer on.
type BugRepo struct {
	db *sql.DB
}

// NewBugRepo returns a BugRepo bound to db.
func NewBugRepo(db *sql.DB) *BugRepo { return &BugRepo{db: db} }

const bugColumns = `id, size, status, assigned_to, created_by, details, created_at, updated_at`

// Create inserts a new bug.  ID, status and timestamps are filled in when
// empty; a new bug is always open unless the caller says otherwise.
func (r *BugRepo) Create(ctx context.Context, b *model.Bug) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.StatusOpen
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
	const q = `INSERT INTO bugs (` + bugColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		b.ID, string(b.Size), string(b.Status), nullString(b.AssignedTo), b.CreatedBy, b.Details, b.CreatedAt, b.UpdatedAt)
	return err
}

// GetByID returns a bug or ErrNotFound.
func (r *BugRepo) GetByID(ctx context.Context, id string) (model.Bug, error) {
	return getBug(ctx, r.db, id)
}

// GetByIDTx is GetByID inside the caller's transaction.
func (r *BugRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (model.Bug, error) {
	return getBug(ctx, tx, id)
}

// TransitionTx moves the bug from status `from` to `to` only if it is
// currently in `from`.  It reports whether a row changed; a false result
// with a nil error means the bug was not in `from`.
func (r *BugRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id string, from, to model.BugStatus, at time.Time) (bool, error) {
	const q = `UPDATE bugs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, string(to), at, id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// BugPatch lists the fields an operator may overwrite.  Nil fields are
// left untouched.  ClearAssignee removes the current assignee.
type BugPatch struct {
	Status        *model.BugStatus
	Size          *model.BugSize
	AssignedTo    *string
	ClearAssignee bool
	Details       *string
}

// UpdateTx applies p to the bug unconditionally and returns the new row.
func (r *BugRepo) UpdateTx(ctx context.Context, tx *sql.Tx, id string, p BugPatch, at time.Time) (model.Bug, error) {
	b, err := getBug(ctx, tx, id)
	if err != nil {
		return model.Bug{}, err
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.Size != nil {
		b.Size = *p.Size
	}
	if p.ClearAssignee {
		b.AssignedTo = nil
	} else if p.AssignedTo != nil {
		v := *p.AssignedTo
		b.AssignedTo = &v
	}
	if p.Details != nil {
		b.Details = *p.Details
	}
	b.UpdatedAt = at
	const q = `UPDATE bugs SET status = ?, size = ?, assigned_to = ?, details = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, q, string(b.Status), string(b.Size), nullString(b.AssignedTo), b.Details, b.UpdatedAt, id); err != nil {
		return model.Bug{}, err
	}
	return b, nil
}

// BugFilter narrows List.  An empty Status matches every bug.
type BugFilter struct {
	Status model.BugStatus
	Limit  int
}

// List returns bugs matching f, newest first.
func (r *BugRepo) List(ctx context.Context, f BugFilter) ([]model.Bug, error) {
	q := `SELECT ` + bugColumns + ` FROM bugs`
	var args []any
	if f.Status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Bug, 0)
	for rows.Next() {
		b, err := scanBug(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ReplaceTagsTx drops every tag of bugID and tags userIDs instead.  An
// empty userIDs clears the tags.  Callers pass distinct, existing users.
func (r *BugRepo) ReplaceTagsTx(ctx context.Context, tx *sql.Tx, bugID, taggedBy string, userIDs []string, at time.Time) ([]model.BugTag, error) {
	if _, err := tx.ExecContext(ctx, `DELETE FROM bug_tag_users WHERE bug_id = ?`, bugID); err != nil {
		return nil, err
	}
	out := make([]model.BugTag, 0, len(userIDs))
	for _, u := range userIDs {
		const q = `INSERT INTO bug_tag_users (bug_id, user_id, tagged_by, tagged_at) VALUES (?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, q, bugID, u, taggedBy, at); err != nil {
			if isUniqueViolation(err) {
				return nil, ErrConflict
			}
			return nil, err
		}
		out = append(out, model.BugTag{BugID: bugID, UserID: u, TaggedBy: taggedBy, TaggedAt: at})
	}
	return out, nil
}

// ListTags returns the users tagged on bugID ordered by user id.
func (r *BugRepo) ListTags(ctx context.Context, bugID string) ([]model.BugTag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT bug_id, user_id, tagged_by, tagged_at FROM bug_tag_users WHERE bug_id = ? ORDER BY user_id`, bugID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.BugTag, 0)
	for rows.Next() {
		var t model.BugTag
		if err := rows.Scan(&t.BugID, &t.UserID, &t.TaggedBy, &t.TaggedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func getBug(ctx context.Context, q dbtx, id string) (model.Bug, error) {
	b, err := scanBug(q.QueryRowContext(ctx, `SELECT `+bugColumns+` FROM bugs WHERE id = ?`, id))
	if err != nil {
		return model.Bug{}, notFound(err)
	}
	return b, nil
}

func scanBug(row rowScanner) (model.Bug, error) {
	var (
		b        model.Bug
		size     string
		status   string
		assigned sql.NullString
	)
	if err := row.Scan(&b.ID, &size, &status, &assigned, &b.CreatedBy, &b.Details, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return model.Bug{}, err
	}
	b.Size = model.BugSize(size)
	b.Status = model.BugStatus(status)
	b.AssignedTo = stringPtr(assigned)
	return b, nil
}
