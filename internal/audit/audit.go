// Package audit stores the append-only record of who did what.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citywatch/api/internal/db"
)

// Actions written by the services.
const (
	ActionUserRegister   = "USER_REGISTER"
	ActionUserLogin      = "USER_LOGIN"
	ActionUserLogout     = "USER_LOGOUT"
	ActionPhoneVerified  = "PHONE_VERIFIED"
	ActionUserSuspend    = "USER_SUSPEND"
	ActionUserAssignCity = "USER_ASSIGN_CITY"
	ActionIssueCreate    = "ISSUE_CREATE"
	ActionIssueUpdate    = "ISSUE_UPDATE"
	ActionIssueDelete    = "ISSUE_DELETE"
	ActionIssueEvidence  = "ISSUE_EVIDENCE"
	ActionIssueReview    = "ISSUE_REVIEW"
	ActionIssueVerify    = "ISSUE_VERIFY"
	ActionIssueReject    = "ISSUE_REJECT"
	ActionIssueEscalate  = "ISSUE_ESCALATE"
	ActionIssueAction    = "ISSUE_ACTION_TAKEN"
	ActionIssueResolve   = "ISSUE_RESOLVE"
	ActionIssueClose     = "ISSUE_CLOSE"
)

const (
	EntityUser  = "User"
	EntityIssue = "Issue"
)

// Entry is one audit row before insertion.
type Entry struct {
	UserID     *uuid.UUID
	UserRole   string
	Action     string
	EntityType string
	EntityID   string
	IPAddress  string
	UserAgent  string
	Details    map[string]any
}

type metaKey struct{}

type requestMeta struct {
	ip        string
	userAgent string
}

// WithRequestMeta stores the caller address and agent for later entries.
func WithRequestMeta(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, metaKey{}, requestMeta{ip: ip, userAgent: userAgent})
}

// NewEntry builds an entry stamped with the request metadata found in ctx.
func NewEntry(ctx context.Context, actor *uuid.UUID, role, action, entityType, entityID string) Entry {
	e := Entry{
		UserID:     actor,
		UserRole:   role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}
	if meta, ok := ctx.Value(metaKey{}).(requestMeta); ok {
		e.IPAddress = meta.ip
		e.UserAgent = meta.userAgent
	}
	return e
}

// WithDetail returns a copy of e with one more detail key.
func (e Entry) WithDetail(key string, value any) Entry {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	e.Details = details
	return e
}

// Insert appends the entry using conn, which may be an open transaction.
func Insert(ctx context.Context, conn db.DBTX, e Entry) error {
	var details []byte
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = raw
	}

	_, err := conn.Exec(ctx, `
        INSERT INTO audit_logs (user_id, user_role, action, entity_type, entity_id, ip_address, user_agent, details)
        VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)`,
		e.UserID, e.UserRole, e.Action, e.EntityType, e.EntityID, e.IPAddress, e.UserAgent, details)
	return err
}

// Activity is an audit row joined with its actor.
type Activity struct {
	ID         uuid.UUID      `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	UserID     *uuid.UUID     `json:"userId"`
	UserName   *string        `json:"userName"`
	UserRole   *string        `json:"userRole"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Record(ctx context.Context, e Entry) error {
	return Insert(ctx, r.pool, e)
}

// ListRecent returns the newest entries first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Activity, error) {
	const query = `
        SELECT a.id, a.action, a.entity_type, a.entity_id, a.user_id, u.name, COALESCE(a.user_role, u.role), a.details, a.created_at
        FROM audit_logs a
        LEFT JOIN users u ON u.id = a.user_id
        ORDER BY a.created_at DESC
        LIMIT $1
    `

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Activity, 0, limit)
	for rows.Next() {
		var (
			a       Activity
			details []byte
		)
		if err := rows.Scan(&a.ID, &a.Action, &a.EntityType, &a.EntityID, &a.UserID, &a.UserName, &a.UserRole, &details, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &a.Details); err != nil {
				return nil, err
			}
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
