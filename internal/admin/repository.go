package admin

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the aggregate reporting queries.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Overview(ctx context.Context, monthStart time.Time) (Stats, error) {
	const query = `
        SELECT
            (SELECT COUNT(*) FROM users),
            (SELECT COUNT(*) FROM issues),
            (SELECT COUNT(*) FROM issues WHERE status = 'REPORTED'),
            (SELECT COUNT(*) FROM issues WHERE status = 'RESOLVED' AND resolved_at >= $1),
            (SELECT COUNT(*) FROM categories WHERE is_active),
            (SELECT COUNT(*) FROM cities WHERE is_active)
    `
	var s Stats
	err := r.pool.QueryRow(ctx, query, monthStart).Scan(
		&s.TotalUsers, &s.TotalIssues, &s.PendingModeration, &s.ResolvedThisMonth, &s.ActiveCategories, &s.ActiveCities,
	)
	return s, err
}

// DailyCounts buckets issues created in [from, to) by UTC calendar day.
func (r *Repository) DailyCounts(ctx context.Context, from, to time.Time) ([]DayCount, error) {
	const query = `
        SELECT (created_at AT TIME ZONE 'UTC')::date AS day,
               COUNT(*),
               COUNT(*) FILTER (WHERE status IN ('RESOLVED', 'CLOSED'))
        FROM issues
        WHERE created_at >= $1 AND created_at < $2
        GROUP BY day
        ORDER BY day
    `
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Day, &d.Reported, &d.Resolved); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
