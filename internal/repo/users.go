package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/citywatch/api/internal/db"
)

const userColumns = `id, phone, email, name, password_hash, role, is_verified, is_phone_verified,
        is_active, is_suspended, credibility_score, assigned_city_id, last_login_at, created_at, updated_at`

// Queries runs user statements against a pool or an open transaction.
type Queries struct {
	db db.DBTX
}

func New(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

func (q *Queries) GetUserByPhone(ctx context.Context, phone string) (User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE phone = $1`
	return scanUser(q.db.QueryRow(ctx, query, phone))
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(q.db.QueryRow(ctx, query, id))
}

func (q *Queries) PhoneExists(ctx context.Context, phone string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE phone = $1)`, phone).Scan(&exists)
	return exists, err
}

// InsertUser stores a new account; a duplicate phone yields ErrDuplicate.
func (q *Queries) InsertUser(ctx context.Context, arg InsertUserParams) (User, error) {
	const query = `
        INSERT INTO users (phone, email, name, password_hash, role, is_verified, credibility_score)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING ` + userColumns

	role := arg.Role
	if role == "" {
		role = RoleCitizen
	}
	user, err := scanUser(q.db.QueryRow(ctx, query, arg.Phone, arg.Email, arg.Name, arg.PasswordHash, role, arg.IsVerified, DefaultCredibility))
	if err != nil && db.IsUniqueViolation(err) {
		return User{}, ErrDuplicate
	}
	return user, err
}

func (q *Queries) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := q.db.Exec(ctx, `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) MarkPhoneVerified(ctx context.Context, phone string, at time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, `
        UPDATE users SET is_phone_verified = TRUE, updated_at = $2
        WHERE phone = $1
        RETURNING id`, phone, at).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	return id, err
}

func (q *Queries) SetSuspended(ctx context.Context, id uuid.UUID, suspended bool, at time.Time) (User, error) {
	const query = `
        UPDATE users SET is_suspended = $2, updated_at = $3
        WHERE id = $1
        RETURNING ` + userColumns
	return scanUser(q.db.QueryRow(ctx, query, id, suspended, at))
}

func (q *Queries) SetAssignedCity(ctx context.Context, id uuid.UUID, cityID *uuid.UUID, at time.Time) (User, error) {
	const query = `
        UPDATE users SET assigned_city_id = $2, updated_at = $3
        WHERE id = $1
        RETURNING ` + userColumns
	return scanUser(q.db.QueryRow(ctx, query, id, cityID, at))
}

// ListRecentUsers returns the newest accounts first.
func (q *Queries) ListRecentUsers(ctx context.Context, limit int) ([]User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1`

	rows, err := q.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (q *Queries) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(
		&u.ID, &u.Phone, &u.Email, &u.Name, &u.PasswordHash, &role, &u.IsVerified, &u.IsPhoneVerified,
		&u.IsActive, &u.IsSuspended, &u.CredibilityScore, &u.AssignedCityID, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.Role = Role(role)
	return u, nil
}
