package repository

import (
	"context"
	"database/sql"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/model"
)

// UserRegistryInterface defines the registry reads the attestation services use
type UserRegistryInterface interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ListAll(ctx context.Context) ([]model.User, error)
	ListByRole(ctx context.Context, role string) ([]model.User, error)
}

// UserRepository is the concrete implementation
type UserRepository struct {
	DB *sql.DB
}

const userColumns = `id, email, first_name, last_name, role, manager_email`

// GetByID fetches a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.ManagerEmail)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("user", id)
		}
		return nil, err
	}
	return &u, nil
}

// GetByEmail matches case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email).
		Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.ManagerEmail)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("user", email)
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) list(ctx context.Context, query string, args ...any) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.ManagerEmail); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListAll fetches every registered user (the "all" targeting mode)
func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

func (r *UserRepository) ListByRole(ctx context.Context, role string) ([]model.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY id`, role)
}

var _ UserRegistryInterface = (*UserRepository)(nil)
