package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/citywatch/api/internal/taxonomy"
)

var pilotWards = []string{
	"Dharampeth", "Sitabuldi", "Sadar", "Lakadganj",
	"Dhantoli", "Hanuman Nagar", "Nehru Nagar", "Gandhibagh",
}

var pilotCategories = []taxonomy.Category{
	{Name: "Roads & Infrastructure", Slug: "roads", Description: "Potholes, broken roads and footpaths", Icon: "road", SortOrder: 1},
	{Name: "Waste Management", Slug: "waste", Description: "Garbage collection and dumping", Icon: "trash", SortOrder: 2},
	{Name: "Street Lights", Slug: "lights", Description: "Non-working or damaged street lights", Icon: "lightbulb", SortOrder: 3},
	{Name: "Water Supply", Slug: "water", Description: "Leaks, outages and contamination", Icon: "droplet", SortOrder: 4},
	{Name: "Drainage", Slug: "drainage", Description: "Blocked drains and waterlogging", Icon: "waves", SortOrder: 5},
	{Name: "Public Safety", Slug: "safety", Description: "Hazards in public spaces", Icon: "shield", SortOrder: 6},
}

var pilotDepartments = []struct{ name, code string }{
	{"Public Works Department", "PWD"},
	{"Solid Waste Management", "SWM"},
	{"Electrical Department", "ELEC"},
	{"Water Works", "WW"},
	{"Drainage Department", "DRN"},
	{"Safety Division", "SAFE"},
}

type seedStore interface {
	UpsertState(ctx context.Context, name, code string) (uuid.UUID, error)
	UpsertCity(ctx context.Context, stateID uuid.UUID, name string) (uuid.UUID, error)
	UpsertWard(ctx context.Context, cityID uuid.UUID, name, number string) error
	UpsertDepartment(ctx context.Context, cityID uuid.UUID, name, code string) error
	UpsertCategory(ctx context.Context, c taxonomy.Category) error
}

// seedReferenceData loads the Nagpur pilot. Every write is an upsert, so reruns are safe.
func seedReferenceData(ctx context.Context, store seedStore) (uuid.UUID, error) {
	stateID, err := store.UpsertState(ctx, "Maharashtra", "MH")
	if err != nil {
		return uuid.Nil, fmt.Errorf("state: %w", err)
	}
	cityID, err := store.UpsertCity(ctx, stateID, "Nagpur")
	if err != nil {
		return uuid.Nil, fmt.Errorf("city: %w", err)
	}

	for i, name := range pilotWards {
		if err := store.UpsertWard(ctx, cityID, name, strconv.Itoa(i+1)); err != nil {
			return uuid.Nil, fmt.Errorf("ward %s: %w", name, err)
		}
	}
	for _, c := range pilotCategories {
		if err := store.UpsertCategory(ctx, c); err != nil {
			return uuid.Nil, fmt.Errorf("category %s: %w", c.Slug, err)
		}
	}
	for _, d := range pilotDepartments {
		if err := store.UpsertDepartment(ctx, cityID, d.name, d.code); err != nil {
			return uuid.Nil, fmt.Errorf("department %s: %w", d.code, err)
		}
	}
	return cityID, nil
}
