package issue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citywatch/api/internal/audit"
	"github.com/citywatch/api/internal/db"
)

// Repository is the PostgreSQL implementation of Store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const issueSelect = `
        SELECT i.id, i.title, i.description, i.category_id, c.name, i.city_id, ci.name,
               i.ward_id, w.name, i.department_id, d.name, i.reporter_id, u.name,
               i.latitude, i.longitude, i.address, i.expected_outcome, i.severity, i.status,
               i.is_verified, i.verified_at, i.moderator_id, i.moderator_notes,
               i.rejection_reason, i.rejected_by_id, i.resolved_at,
               i.upvote_count, i.view_count, i.created_at, i.updated_at
        FROM issues i
        JOIN categories c ON c.id = i.category_id
        JOIN cities ci ON ci.id = i.city_id
        LEFT JOIN wards w ON w.id = i.ward_id
        LEFT JOIN departments d ON d.id = i.department_id
        JOIN users u ON u.id = i.reporter_id
`

func getIssue(ctx context.Context, conn db.DBTX, id uuid.UUID) (Issue, error) {
	return scanIssue(conn.QueryRow(ctx, issueSelect+` WHERE i.id = $1`, id))
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Issue, error) {
	return getIssue(ctx, r.pool, id)
}

// Create inserts the issue, its evidence, the first status update and the audit row atomically.
func (r *Repository) Create(ctx context.Context, in NewIssue, evidence []EvidenceRef, first StatusUpdate, entry func(uuid.UUID) audit.Entry) (Issue, error) {
	var created Issue
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
            INSERT INTO issues (title, description, category_id, city_id, ward_id, reporter_id,
                                latitude, longitude, address, expected_outcome, severity, status)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
            RETURNING id`,
			in.Title, in.Description, in.CategoryID, in.CityID, in.WardID, in.ReporterID,
			in.Latitude, in.Longitude, in.Address, in.ExpectedOutcome, string(in.Severity), string(StatusReported),
		).Scan(&id)
		if err != nil {
			return err
		}

		if _, err := insertEvidence(ctx, tx, id, evidence); err != nil {
			return err
		}

		first.IssueID = id
		if err := insertStatusUpdate(ctx, tx, first); err != nil {
			return err
		}
		if err := audit.Insert(ctx, tx, entry(id)); err != nil {
			return err
		}

		created, err = getIssue(ctx, tx, id)
		return err
	})
	return created, err
}

// IncrementViews bumps the view counter and returns the new value.
func (r *Repository) IncrementViews(ctx context.Context, id uuid.UUID) (int, error) {
	var views int
	err := r.pool.QueryRow(ctx, `UPDATE issues SET view_count = view_count + 1 WHERE id = $1 RETURNING view_count`, id).Scan(&views)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return views, err
}

func (r *Repository) ListEvidence(ctx context.Context, issueID uuid.UUID) ([]Evidence, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT id, issue_id, type, file_path, file_name, file_size, mime_type, created_at
        FROM evidence WHERE issue_id = $1
        ORDER BY created_at`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Evidence{}
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// ListStatusUpdates returns the history oldest first.
func (r *Repository) ListStatusUpdates(ctx context.Context, issueID uuid.UUID, publicOnly bool) ([]StatusUpdate, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT s.id, s.issue_id, s.from_status, s.to_status, s.user_id, COALESCE(u.name, ''), s.user_role,
               s.reason, s.notes, s.is_public, s.created_at
        FROM issue_status_updates s
        LEFT JOIN users u ON u.id = s.user_id
        WHERE s.issue_id = $1 AND (s.is_public OR NOT $2)
        ORDER BY s.created_at, s.id`, issueID, publicOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []StatusUpdate{}
	for rows.Next() {
		var (
			su   StatusUpdate
			from *string
			to   string
		)
		if err := rows.Scan(&su.ID, &su.IssueID, &from, &to, &su.UserID, &su.UserName, &su.UserRole,
			&su.Reason, &su.Notes, &su.IsPublic, &su.CreatedAt); err != nil {
			return nil, err
		}
		if from != nil {
			fs := Status(*from)
			su.FromStatus = &fs
		}
		su.ToStatus = Status(to)
		items = append(items, su)
	}
	return items, rows.Err()
}

func (r *Repository) HasUpvoted(ctx context.Context, issueID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM issue_upvotes WHERE issue_id = $1 AND user_id = $2)`, issueID, userID).Scan(&exists)
	return exists, err
}

// Update edits a REPORTED issue. A status change since the caller's read yields ErrStaleState.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, in UpdateInput, at time.Time, entry audit.Entry) (Issue, error) {
	setParts := make([]string, 0, 5)
	args := make([]any, 0, 6)
	idx := 1

	if in.Title != nil {
		setParts = append(setParts, fmt.Sprintf("title = $%d", idx))
		args = append(args, *in.Title)
		idx++
	}
	if in.Description != nil {
		setParts = append(setParts, fmt.Sprintf("description = $%d", idx))
		args = append(args, *in.Description)
		idx++
	}
	if in.Address != nil {
		setParts = append(setParts, fmt.Sprintf("address = $%d", idx))
		args = append(args, *in.Address)
		idx++
	}
	if in.ExpectedOutcome != nil {
		setParts = append(setParts, fmt.Sprintf("expected_outcome = $%d", idx))
		args = append(args, *in.ExpectedOutcome)
		idx++
	}
	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", idx))
	args = append(args, at)
	idx++

	args = append(args, id)
	query := fmt.Sprintf("UPDATE issues SET %s WHERE id = $%d AND status = 'REPORTED'", strings.Join(setParts, ", "), idx)

	var updated Issue
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrStaleState
		}
		if err := audit.Insert(ctx, tx, entry); err != nil {
			return err
		}
		updated, err = getIssue(ctx, tx, id)
		return err
	})
	return updated, err
}

// Delete removes a REPORTED issue; evidence, upvotes and history cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID, entry audit.Entry) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM issues WHERE id = $1 AND status = 'REPORTED'`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrStaleState
		}
		return audit.Insert(ctx, tx, entry)
	})
}

// AddEvidence attaches stored uploads to a REPORTED issue.
func (r *Repository) AddEvidence(ctx context.Context, id uuid.UUID, refs []EvidenceRef, entry audit.Entry) ([]Evidence, error) {
	var added []Evidence
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM issues WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if Status(status) != StatusReported {
			return ErrStaleState
		}
		added, err = insertEvidence(ctx, tx, id, refs)
		if err != nil {
			return err
		}
		return audit.Insert(ctx, tx, entry)
	})
	return added, err
}

// AddUpvote records the vote and bumps the counter in one transaction.
func (r *Repository) AddUpvote(ctx context.Context, issueID, userID uuid.UUID) (int, error) {
	var count int
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO issue_upvotes (issue_id, user_id) VALUES ($1, $2)
            ON CONFLICT (issue_id, user_id) DO NOTHING`, issueID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrDuplicate
		}
		return tx.QueryRow(ctx, `
            UPDATE issues SET upvote_count = upvote_count + 1
            WHERE id = $1 RETURNING upvote_count`, issueID).Scan(&count)
	})
	return count, err
}

func (r *Repository) RemoveUpvote(ctx context.Context, issueID, userID uuid.UUID) (int, error) {
	var count int
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM issue_upvotes WHERE issue_id = $1 AND user_id = $2`, issueID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return tx.QueryRow(ctx, `
            UPDATE issues SET upvote_count = GREATEST(upvote_count - 1, 0)
            WHERE id = $1 RETURNING upvote_count`, issueID).Scan(&count)
	})
	return count, err
}

// Transition locks the row, checks the current status against p.From and
// applies the change together with its history and audit rows.
func (r *Repository) Transition(ctx context.Context, p TransitionParams) (Issue, error) {
	var updated Issue
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM issues WHERE id = $1 FOR UPDATE`, p.IssueID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		from := Status(current)
		if !containsStatus(p.From, from) {
			return ErrStaleState
		}

		setParts := []string{"status = $1", "updated_at = $2"}
		args := []any{string(p.To), p.At}
		idx := 3

		c := p.Changes
		if c.Verify {
			setParts = append(setParts, "is_verified = TRUE", "verified_at = $2", fmt.Sprintf("moderator_id = $%d", idx))
			args = append(args, c.ModeratorID)
			idx++
		}
		if c.DepartmentID != nil {
			setParts = append(setParts, fmt.Sprintf("department_id = $%d", idx))
			args = append(args, *c.DepartmentID)
			idx++
		}
		if c.Severity != nil {
			setParts = append(setParts, fmt.Sprintf("severity = $%d", idx))
			args = append(args, string(*c.Severity))
			idx++
		}
		if c.ModeratorNotes != nil {
			setParts = append(setParts, fmt.Sprintf("moderator_notes = $%d", idx))
			args = append(args, *c.ModeratorNotes)
			idx++
		}
		if c.RejectionReason != nil {
			setParts = append(setParts, fmt.Sprintf("rejection_reason = $%d", idx))
			args = append(args, *c.RejectionReason)
			idx++
		}
		if c.RejectedByID != nil {
			setParts = append(setParts, fmt.Sprintf("rejected_by_id = $%d", idx))
			args = append(args, *c.RejectedByID)
			idx++
		}
		if c.Resolved {
			setParts = append(setParts, "resolved_at = $2")
		}

		args = append(args, p.IssueID, current)
		query := fmt.Sprintf("UPDATE issues SET %s WHERE id = $%d AND status = $%d", strings.Join(setParts, ", "), idx, idx+1)

		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrStaleState
		}

		su := p.Update
		su.IssueID = p.IssueID
		su.FromStatus = &from
		su.ToStatus = p.To
		if err := insertStatusUpdate(ctx, tx, su); err != nil {
			return err
		}
		if err := audit.Insert(ctx, tx, p.Audit.WithDetail("from", string(from)).WithDetail("to", string(p.To))); err != nil {
			return err
		}

		updated, err = getIssue(ctx, tx, p.IssueID)
		return err
	})
	return updated, err
}

// List applies f and returns one page plus the total match count.
func (r *Repository) List(ctx context.Context, f Filter) ([]Issue, int, error) {
	where, args := filterClause(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM issues i`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := SortColumns[f.SortBy]
	if order == "" {
		order = SortColumns["createdAt"]
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}

	idx := len(args) + 1
	query := fmt.Sprintf("%s%s ORDER BY %s %s, i.id LIMIT $%d OFFSET $%d", issueSelect, where, order, dir, idx, idx+1)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	items, err := r.collect(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Queue lists issues awaiting moderation, oldest first.
func (r *Repository) Queue(ctx context.Context, statuses []Status, cityID *uuid.UUID, limit int) ([]Issue, error) {
	where, args := filterClause(Filter{CityID: cityID, Statuses: statuses})
	query := fmt.Sprintf("%s%s ORDER BY i.created_at ASC, i.id LIMIT $%d", issueSelect, where, len(args)+1)
	args = append(args, limit)
	return r.collect(ctx, query, args...)
}

// StatusCounts groups issue counts by status, optionally for one city.
func (r *Repository) StatusCounts(ctx context.Context, cityID *uuid.UUID) (map[Status]int, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT status, COUNT(*) FROM issues
        WHERE ($1::uuid IS NULL OR city_id = $1)
        GROUP BY status`, cityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *Repository) collect(ctx context.Context, query string, args ...any) ([]Issue, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Issue{}
	for rows.Next() {
		iss, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, iss)
	}
	return items, rows.Err()
}

func filterClause(f Filter) (string, []any) {
	conds := make([]string, 0, 6)
	args := make([]any, 0, 6)
	idx := 1

	if f.CityID != nil {
		conds = append(conds, fmt.Sprintf("i.city_id = $%d", idx))
		args = append(args, *f.CityID)
		idx++
	}
	if f.WardID != nil {
		conds = append(conds, fmt.Sprintf("i.ward_id = $%d", idx))
		args = append(args, *f.WardID)
		idx++
	}
	if f.CategoryID != nil {
		conds = append(conds, fmt.Sprintf("i.category_id = $%d", idx))
		args = append(args, *f.CategoryID)
		idx++
	}
	if f.ReporterID != nil {
		conds = append(conds, fmt.Sprintf("i.reporter_id = $%d", idx))
		args = append(args, *f.ReporterID)
		idx++
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, fmt.Sprintf("i.status = ANY($%d)", idx))
		args = append(args, statusStrings(f.Statuses))
		idx++
	}
	if len(f.Severities) > 0 {
		values := make([]string, len(f.Severities))
		for i, s := range f.Severities {
			values[i] = string(s)
		}
		conds = append(conds, fmt.Sprintf("i.severity = ANY($%d)", idx))
		args = append(args, values)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func containsStatus(list []Status, s Status) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func insertEvidence(ctx context.Context, tx pgx.Tx, issueID uuid.UUID, refs []EvidenceRef) ([]Evidence, error) {
	out := make([]Evidence, 0, len(refs))
	for _, ref := range refs {
		row := tx.QueryRow(ctx, `
            INSERT INTO evidence (issue_id, type, file_path, file_name, file_size, mime_type)
            VALUES ($1, $2, $3, $4, $5, $6)
            RETURNING id, issue_id, type, file_path, file_name, file_size, mime_type, created_at`,
			issueID, string(ref.Type), ref.FilePath, ref.FileName, ref.FileSize, ref.MimeType)
		e, err := scanEvidence(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func insertStatusUpdate(ctx context.Context, tx pgx.Tx, su StatusUpdate) error {
	var from *string
	if su.FromStatus != nil {
		s := string(*su.FromStatus)
		from = &s
	}
	_, err := tx.Exec(ctx, `
        INSERT INTO issue_status_updates (issue_id, from_status, to_status, user_id, user_role, reason, notes, is_public)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		su.IssueID, from, string(su.ToStatus), su.UserID, su.UserRole, su.Reason, su.Notes, su.IsPublic)
	return err
}

func scanEvidence(row pgx.Row) (Evidence, error) {
	var (
		e   Evidence
		typ string
	)
	if err := row.Scan(&e.ID, &e.IssueID, &typ, &e.FilePath, &e.FileName, &e.FileSize, &e.MimeType, &e.CreatedAt); err != nil {
		return Evidence{}, err
	}
	e.Type = EvidenceType(typ)
	return e, nil
}

func scanIssue(row pgx.Row) (Issue, error) {
	var (
		iss      Issue
		severity string
		status   string
	)
	err := row.Scan(
		&iss.ID, &iss.Title, &iss.Description, &iss.CategoryID, &iss.CategoryName, &iss.CityID, &iss.CityName,
		&iss.WardID, &iss.WardName, &iss.DepartmentID, &iss.DepartmentName, &iss.ReporterID, &iss.ReporterName,
		&iss.Latitude, &iss.Longitude, &iss.Address, &iss.ExpectedOutcome, &severity, &status,
		&iss.IsVerified, &iss.VerifiedAt, &iss.ModeratorID, &iss.ModeratorNotes,
		&iss.RejectionReason, &iss.RejectedByID, &iss.ResolvedAt,
		&iss.UpvoteCount, &iss.ViewCount, &iss.CreatedAt, &iss.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Issue{}, ErrNotFound
		}
		return Issue{}, err
	}
	iss.Severity = Severity(severity)
	iss.Status = Status(status)
	return iss, nil
}
