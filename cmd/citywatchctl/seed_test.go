package main

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citywatch/api/internal/taxonomy"
)

type recordingSeedStore struct {
	cityID      uuid.UUID
	wards       map[string]string
	categories  map[string]taxonomy.Category
	departments map[string]string
}

func newRecordingSeedStore() *recordingSeedStore {
	return &recordingSeedStore{
		cityID:      uuid.New(),
		wards:       map[string]string{},
		categories:  map[string]taxonomy.Category{},
		departments: map[string]string{},
	}
}

func (s *recordingSeedStore) UpsertState(ctx context.Context, name, code string) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (s *recordingSeedStore) UpsertCity(ctx context.Context, stateID uuid.UUID, name string) (uuid.UUID, error) {
	return s.cityID, nil
}

func (s *recordingSeedStore) UpsertWard(ctx context.Context, cityID uuid.UUID, name, number string) error {
	s.wards[number] = name
	return nil
}

func (s *recordingSeedStore) UpsertDepartment(ctx context.Context, cityID uuid.UUID, name, code string) error {
	s.departments[code] = name
	return nil
}

func (s *recordingSeedStore) UpsertCategory(ctx context.Context, c taxonomy.Category) error {
	s.categories[c.Slug] = c
	return nil
}

func TestSeedReferenceDataIsIdempotent(t *testing.T) {
	store := newRecordingSeedStore()

	for i := 0; i < 2; i++ {
		cityID, err := seedReferenceData(context.Background(), store)
		require.NoError(t, err)
		assert.Equal(t, store.cityID, cityID)
	}

	assert.Len(t, store.wards, 8)
	assert.Equal(t, "Dharampeth", store.wards["1"])
	assert.Len(t, store.categories, 6)
	assert.Equal(t, 1, store.categories["roads"].SortOrder)
	assert.Len(t, store.departments, 6)
	assert.Equal(t, "Public Works Department", store.departments["PWD"])
}
