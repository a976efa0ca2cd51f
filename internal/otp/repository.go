package otp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citywatch/api/internal/audit"
	"github.com/citywatch/api/internal/db"
	"github.com/citywatch/api/internal/repo"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountSince counts codes issued for phone at or after since.
func (r *Repository) CountSince(ctx context.Context, phone string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM otp_verifications WHERE phone = $1 AND created_at >= $2`, phone, since).Scan(&n)
	return n, err
}

// Issue invalidates every unused code for the phone and stores o.
func (r *Repository) Issue(ctx context.Context, o OTP) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE otp_verifications SET is_used = TRUE WHERE phone = $1 AND NOT is_used`, o.Phone); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
            INSERT INTO otp_verifications (phone, code, purpose, expires_at, created_at)
            VALUES ($1, $2, $3, $4, $5)`, o.Phone, o.Code, o.Purpose, o.ExpiresAt, o.CreatedAt)
		return err
	})
}

// FindValid returns the newest unused, unexpired code matching phone and code.
func (r *Repository) FindValid(ctx context.Context, phone, code string, now time.Time) (OTP, error) {
	var o OTP
	err := r.pool.QueryRow(ctx, `
        SELECT id, phone, code, purpose, expires_at, is_used, attempts, verified_at, created_at
        FROM otp_verifications
        WHERE phone = $1 AND code = $2 AND NOT is_used AND expires_at > $3
        ORDER BY created_at DESC
        LIMIT 1`, phone, code, now).
		Scan(&o.ID, &o.Phone, &o.Code, &o.Purpose, &o.ExpiresAt, &o.IsUsed, &o.Attempts, &o.VerifiedAt, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OTP{}, ErrNotFound
	}
	return o, err
}

func (r *Repository) RecordFailedAttempt(ctx context.Context, phone string) error {
	_, err := r.pool.Exec(ctx, `UPDATE otp_verifications SET attempts = attempts + 1 WHERE phone = $1 AND NOT is_used`, phone)
	return err
}

// Consume marks the code used, flags the user's phone as verified and audits it.
func (r *Repository) Consume(ctx context.Context, id uuid.UUID, phone string, at time.Time, entry func(userID uuid.UUID) audit.Entry) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE otp_verifications SET is_used = TRUE, verified_at = $2 WHERE id = $1 AND NOT is_used`, id, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		userID, err := repo.New(tx).MarkPhoneVerified(ctx, phone, at)
		if err != nil {
			return err
		}
		return audit.Insert(ctx, tx, entry(userID))
	})
}
