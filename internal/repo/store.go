package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citywatch/api/internal/audit"
	"github.com/citywatch/api/internal/db"
)

// Store combines user statements with their audit rows in one transaction.
type Store struct {
	*Queries
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Queries: New(pool), pool: pool}
}

func (s *Store) CreateUser(ctx context.Context, arg InsertUserParams, entry func(User) audit.Entry) (User, error) {
	var created User
	err := db.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		user, err := New(tx).InsertUser(ctx, arg)
		if err != nil {
			return err
		}
		if err := audit.Insert(ctx, tx, entry(user)); err != nil {
			return err
		}
		created = user
		return nil
	})
	return created, err
}

func (s *Store) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time, entry audit.Entry) error {
	return db.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := New(tx).TouchLastLogin(ctx, id, at); err != nil {
			return err
		}
		return audit.Insert(ctx, tx, entry)
	})
}

func (s *Store) RecordAudit(ctx context.Context, entry audit.Entry) error {
	return audit.Insert(ctx, s.pool, entry)
}

func (s *Store) UpdateSuspension(ctx context.Context, id uuid.UUID, suspended bool, at time.Time, entry audit.Entry) (User, error) {
	var updated User
	err := db.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		user, err := New(tx).SetSuspended(ctx, id, suspended, at)
		if err != nil {
			return err
		}
		updated = user
		return audit.Insert(ctx, tx, entry)
	})
	return updated, err
}

func (s *Store) UpdateAssignedCity(ctx context.Context, id uuid.UUID, cityID *uuid.UUID, at time.Time, entry audit.Entry) (User, error) {
	var updated User
	err := db.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		user, err := New(tx).SetAssignedCity(ctx, id, cityID, at)
		if err != nil {
			return err
		}
		updated = user
		return audit.Insert(ctx, tx, entry)
	})
	return updated, err
}
