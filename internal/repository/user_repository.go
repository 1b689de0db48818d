package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bug-hunting/internal/model"
)

// UserRepo reads the users table.  Users are provisioned by the
// authentication layer; Create exists for operators and fixtures.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

// Create inserts a user, assigning an id when u.ID is empty.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id, display_name, email, is_admin, created_at) VALUES (?,?,?,?,?)",
		u.ID, u.DisplayName, u.Email, u.IsAdmin, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrEmailExists
	}
	return err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return getUser(ctx, r.DB, id)
}

// ExistsTx reports whether a user with id exists, inside tx.
func (r *UserRepo) ExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	_, err := getUser(ctx, tx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// List returns all users ordered by display name.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,display_name,email,is_admin,created_at FROM users ORDER BY display_name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Email, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func getUser(ctx context.Context, q dbtx, id string) (model.User, error) {
	var u model.User
	err := q.QueryRowContext(ctx,
		"SELECT id,display_name,email,is_admin,created_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.DisplayName, &u.Email, &u.IsAdmin, &u.CreatedAt)
	return u, notFound(err)
}
