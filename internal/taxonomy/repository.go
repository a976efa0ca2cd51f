package taxonomy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads and seeds the reference tables.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const cityColumns = `c.id, c.name, c.state_id, s.name, c.is_active, c.pilot_start_date, c.created_at`

func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	const query = `
        SELECT id, name, slug, description, icon, sort_order, is_active, created_at
        FROM categories
        WHERE is_active
        ORDER BY sort_order, name
    `
	return collect(ctx, r.pool, query, scanCategory)
}

func (r *Repository) GetCategory(ctx context.Context, id uuid.UUID) (Category, error) {
	const query = `
        SELECT id, name, slug, description, icon, sort_order, is_active, created_at
        FROM categories WHERE id = $1
    `
	v, err := scanCategory(r.pool.QueryRow(ctx, query, id))
	return v, mapNoRows(err)
}

func (r *Repository) ListCities(ctx context.Context) ([]City, error) {
	const query = `
        SELECT ` + cityColumns + `
        FROM cities c JOIN states s ON s.id = c.state_id
        WHERE c.is_active
        ORDER BY c.name
    `
	return collect(ctx, r.pool, query, scanCity)
}

func (r *Repository) GetCity(ctx context.Context, id uuid.UUID) (City, error) {
	const query = `
        SELECT ` + cityColumns + `
        FROM cities c JOIN states s ON s.id = c.state_id
        WHERE c.id = $1
    `
	v, err := scanCity(r.pool.QueryRow(ctx, query, id))
	return v, mapNoRows(err)
}

func (r *Repository) ListWards(ctx context.Context, cityID uuid.UUID) ([]Ward, error) {
	const query = `
        SELECT id, name, number, city_id, created_at
        FROM wards WHERE city_id = $1
        ORDER BY number
    `
	return collect(ctx, r.pool, query, scanWard, cityID)
}

func (r *Repository) GetWard(ctx context.Context, id uuid.UUID) (Ward, error) {
	const query = `SELECT id, name, number, city_id, created_at FROM wards WHERE id = $1`
	v, err := scanWard(r.pool.QueryRow(ctx, query, id))
	return v, mapNoRows(err)
}

func (r *Repository) ListDepartments(ctx context.Context, cityID uuid.UUID) ([]Department, error) {
	const query = `
        SELECT id, name, code, city_id, created_at
        FROM departments WHERE city_id = $1
        ORDER BY name
    `
	return collect(ctx, r.pool, query, scanDepartment, cityID)
}

func (r *Repository) GetDepartment(ctx context.Context, id uuid.UUID) (Department, error) {
	const query = `SELECT id, name, code, city_id, created_at FROM departments WHERE id = $1`
	v, err := scanDepartment(r.pool.QueryRow(ctx, query, id))
	return v, mapNoRows(err)
}

// Counts returns the number of active categories and active cities.
func (r *Repository) Counts(ctx context.Context) (categories int, cities int, err error) {
	err = r.pool.QueryRow(ctx, `
        SELECT (SELECT COUNT(*) FROM categories WHERE is_active),
               (SELECT COUNT(*) FROM cities WHERE is_active)`).Scan(&categories, &cities)
	return categories, cities, err
}

// UpsertState and the functions below are used by the seed command.
func (r *Repository) UpsertState(ctx context.Context, name, code string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
        INSERT INTO states (name, code) VALUES ($1, $2)
        ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
        RETURNING id`, name, code).Scan(&id)
	return id, err
}

func (r *Repository) UpsertCity(ctx context.Context, stateID uuid.UUID, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
        INSERT INTO cities (name, state_id, pilot_start_date) VALUES ($1, $2, now())
        ON CONFLICT (state_id, name) DO UPDATE SET is_active = TRUE
        RETURNING id`, name, stateID).Scan(&id)
	return id, err
}

func (r *Repository) UpsertWard(ctx context.Context, cityID uuid.UUID, name, number string) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO wards (name, number, city_id) VALUES ($1, $2, $3)
        ON CONFLICT (city_id, number) DO UPDATE SET name = EXCLUDED.name`, name, number, cityID)
	return err
}

func (r *Repository) UpsertDepartment(ctx context.Context, cityID uuid.UUID, name, code string) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO departments (name, code, city_id) VALUES ($1, $2, $3)
        ON CONFLICT (city_id, code) DO UPDATE SET name = EXCLUDED.name`, name, code, cityID)
	return err
}

func (r *Repository) UpsertCategory(ctx context.Context, c Category) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO categories (name, slug, description, icon, sort_order) VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (slug) DO UPDATE
        SET name = EXCLUDED.name, description = EXCLUDED.description, icon = EXCLUDED.icon, sort_order = EXCLUDED.sort_order`,
		c.Name, c.Slug, c.Description, c.Icon, c.SortOrder)
	return err
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func collect[T any](ctx context.Context, pool *pgxpool.Pool, query string, scan func(pgx.Row) (T, error), args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.Icon, &c.SortOrder, &c.IsActive, &c.CreatedAt)
	return c, err
}

func scanCity(row pgx.Row) (City, error) {
	var c City
	err := row.Scan(&c.ID, &c.Name, &c.StateID, &c.StateName, &c.IsActive, &c.PilotStartDate, &c.CreatedAt)
	return c, err
}

func scanWard(row pgx.Row) (Ward, error) {
	var w Ward
	err := row.Scan(&w.ID, &w.Name, &w.Number, &w.CityID, &w.CreatedAt)
	return w, err
}

func scanDepartment(row pgx.Row) (Department, error) {
	var d Department
	err := row.Scan(&d.ID, &d.Name, &d.Code, &d.CityID, &d.CreatedAt)
	return d, err
}
