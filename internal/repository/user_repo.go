package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pondflow/internal/model"
)

const userColumns = `id, username, password_hash, full_name, role, has_active_project, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.FullName,
		&u.Role,
		&u.HasActiveProject,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "get user")
	}
	return &u, nil
}

func (r *txRepo) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(r.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) SaveUser(ctx context.Context, u *model.User) error {
	if u.ID == 0 {
		return createUser(ctx, r.tx, u)
	}
	_, err := r.tx.Exec(ctx, `
        UPDATE users
        SET full_name = $2, role = $3, has_active_project = $4, is_active = $5, updated_at = $6
        WHERE id = $1
    `, u.ID, u.FullName, u.Role, u.HasActiveProject, u.IsActive, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	return nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func createUser(ctx context.Context, db queryRower, u *model.User) error {
	query := `
        INSERT INTO users (username, password_hash, full_name, role, has_active_project, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        RETURNING id, created_at, updated_at
    `
	err := db.QueryRow(ctx, query,
		u.Username, u.PasswordHash, u.FullName, u.Role, u.HasActiveProject, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", model.ErrDuplicateUsername, u.Username)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UserRepository serves logins and seeding outside workflow transactions.
type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, u *model.User) error {
	return createUser(ctx, r.db, u)
}

// FindUserByUsername returns model.ErrNotFound for unknown usernames.
func (r *UserRepository) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
}
