package taxonomy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citywatch/api/internal/apperr"
)

type stubStore struct {
	city  City
	wards []Ward
}

func (s stubStore) ListCategories(ctx context.Context) ([]Category, error) { return nil, nil }
func (s stubStore) ListCities(ctx context.Context) ([]City, error)         { return []City{s.city}, nil }

func (s stubStore) GetCity(ctx context.Context, id uuid.UUID) (City, error) {
	if id != s.city.ID {
		return City{}, ErrNotFound
	}
	return s.city, nil
}

func (s stubStore) ListWards(ctx context.Context, cityID uuid.UUID) ([]Ward, error) {
	return s.wards, nil
}

func (s stubStore) ListDepartments(ctx context.Context, cityID uuid.UUID) ([]Department, error) {
	return []Department{}, nil
}

func TestWardsRequireKnownCity(t *testing.T) {
	city := City{ID: uuid.New(), Name: "Nagpur"}
	svc := NewService(stubStore{city: city, wards: []Ward{{ID: uuid.New(), Number: "1", CityID: city.ID}}})

	wards, err := svc.Wards(context.Background(), city.ID)
	require.NoError(t, err)
	assert.Len(t, wards, 1)

	_, err = svc.Wards(context.Background(), uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.Departments(context.Background(), uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
