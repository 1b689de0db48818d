package repository

import (
	"context"
	"database/sql"
	"sort"

	"github.com/iliyamo/bug-hunting/internal/model"
)

// PointScaleRepo reads the size → base points table.
type PointScaleRepo struct {
	db *sql.DB
}

// NewPointScaleRepo returns a PointScaleRepo bound to db.
func NewPointScaleRepo(db *sql.DB) *PointScaleRepo { return &PointScaleRepo{db: db} }

// List returns every entry ordered from the smallest size to the largest.
func (r *PointScaleRepo) List(ctx context.Context) ([]model.PointScaleEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT size, value FROM point_scale`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.PointScaleEntry, 0, len(model.Sizes))
	for rows.Next() {
		var (
			size string
			e    model.PointScaleEntry
		)
		if err := rows.Scan(&size, &e.Value); err != nil {
			return nil, err
		}
		e.Size = model.BugSize(size)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortBySize(out)
	return out, nil
}

// ValueForSizeTx returns the base point value for size or ErrNotFound.
func (r *PointScaleRepo) ValueForSizeTx(ctx context.Context, tx *sql.Tx, size model.BugSize) (int, error) {
	var v int
	err := tx.QueryRowContext(ctx, `SELECT value FROM point_scale WHERE size = ?`, string(size)).Scan(&v)
	return v, notFound(err)
}

func sortBySize(entries []model.PointScaleEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Size.Rank() < entries[j].Size.Rank() })
}
