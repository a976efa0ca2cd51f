package taxonomy

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/citywatch/api/internal/apperr"
)

// Store is the read side used by Service.
type Store interface {
	ListCategories(ctx context.Context) ([]Category, error)
	ListCities(ctx context.Context) ([]City, error)
	GetCity(ctx context.Context, id uuid.UUID) (City, error)
	ListWards(ctx context.Context, cityID uuid.UUID) ([]Ward, error)
	ListDepartments(ctx context.Context, cityID uuid.UUID) ([]Department, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *Service) Cities(ctx context.Context) ([]City, error) {
	return s.store.ListCities(ctx)
}

func (s *Service) Wards(ctx context.Context, cityID uuid.UUID) ([]Ward, error) {
	if err := s.requireCity(ctx, cityID); err != nil {
		return nil, err
	}
	return s.store.ListWards(ctx, cityID)
}

func (s *Service) Departments(ctx context.Context, cityID uuid.UUID) ([]Department, error) {
	if err := s.requireCity(ctx, cityID); err != nil {
		return nil, err
	}
	return s.store.ListDepartments(ctx, cityID)
}

func (s *Service) requireCity(ctx context.Context, cityID uuid.UUID) error {
	_, err := s.store.GetCity(ctx, cityID)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("City not found")
	}
	return err
}
