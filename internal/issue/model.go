package issue

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/citywatch/api/internal/audit"
)

var (
	ErrNotFound = errors.New("issue: not found")
	// ErrStaleState means the row changed status between read and write.
	ErrStaleState = errors.New("issue: status changed concurrently")
	ErrDuplicate  = errors.New("issue: duplicate upvote")
)

type Status string

const (
	StatusReported    Status = "REPORTED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusVerified    Status = "VERIFIED"
	StatusRejected    Status = "REJECTED"
	StatusEscalated   Status = "ESCALATED"
	StatusActionTaken Status = "ACTION_TAKEN"
	StatusResolved    Status = "RESOLVED"
	StatusClosed      Status = "CLOSED"
)

var transitions = map[Status][]Status{
	StatusReported:    {StatusUnderReview, StatusVerified, StatusRejected, StatusEscalated},
	StatusUnderReview: {StatusVerified, StatusRejected, StatusEscalated},
	StatusVerified:    {StatusEscalated, StatusActionTaken, StatusResolved, StatusClosed},
	StatusEscalated:   {StatusActionTaken, StatusResolved, StatusClosed},
	StatusActionTaken: {StatusResolved, StatusClosed},
}

// PubliclyListed are the statuses anonymous and citizen viewers can list.
var PubliclyListed = []Status{StatusVerified, StatusEscalated, StatusActionTaken, StatusClosed}

func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if s == StatusRejected || s == StatusResolved || s == StatusClosed {
		return s, true
	}
	_, ok := transitions[s]
	return s, ok
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// IsPublic reports whether an issue in this status can be opened by anyone.
func (s Status) IsPublic() bool {
	switch s {
	case StatusReported, StatusUnderReview, StatusRejected:
		return false
	}
	return true
}

// SourcesOf lists every status that may move to target.
func SourcesOf(target Status) []Status {
	var out []Status
	for from, nexts := range transitions {
		for _, next := range nexts {
			if next == target {
				out = append(out, from)
			}
		}
	}
	return out
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return s, true
	}
	return "", false
}

type EvidenceType string

const (
	EvidenceImage EvidenceType = "IMAGE"
	EvidenceVideo EvidenceType = "VIDEO"
)

type Issue struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	CategoryID      uuid.UUID  `json:"categoryId"`
	CategoryName    string     `json:"categoryName"`
	CityID          uuid.UUID  `json:"cityId"`
	CityName        string     `json:"cityName"`
	WardID          *uuid.UUID `json:"wardId"`
	WardName        *string    `json:"wardName"`
	DepartmentID    *uuid.UUID `json:"departmentId"`
	DepartmentName  *string    `json:"departmentName"`
	ReporterID      uuid.UUID  `json:"reporterId"`
	ReporterName    string     `json:"reporterName"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	Address         string     `json:"address"`
	ExpectedOutcome string     `json:"expectedOutcome"`
	Severity        Severity   `json:"severity"`
	Status          Status     `json:"status"`
	IsVerified      bool       `json:"isVerified"`
	VerifiedAt      *time.Time `json:"verifiedAt"`
	ModeratorID     *uuid.UUID `json:"moderatorId"`
	ModeratorNotes  *string    `json:"moderatorNotes"`
	RejectionReason *string    `json:"rejectionReason"`
	RejectedByID    *uuid.UUID `json:"rejectedById"`
	ResolvedAt      *time.Time `json:"resolvedAt"`
	UpvoteCount     int        `json:"upvoteCount"`
	ViewCount       int        `json:"viewCount"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type Evidence struct {
	ID        uuid.UUID    `json:"id"`
	IssueID   uuid.UUID    `json:"issueId"`
	Type      EvidenceType `json:"type"`
	FilePath  string       `json:"filePath"`
	FileName  string       `json:"fileName"`
	FileSize  int64        `json:"fileSize"`
	MimeType  string       `json:"mimeType"`
	CreatedAt time.Time    `json:"createdAt"`
}

// EvidenceRef points at an already stored upload.
type EvidenceRef struct {
	Type     EvidenceType `json:"type"`
	FilePath string       `json:"filePath"`
	FileName string       `json:"fileName"`
	FileSize int64        `json:"fileSize"`
	MimeType string       `json:"mimeType"`
}

type StatusUpdate struct {
	ID         uuid.UUID `json:"id"`
	IssueID    uuid.UUID `json:"issueId"`
	FromStatus *Status   `json:"fromStatus"`
	ToStatus   Status    `json:"toStatus"`
	UserID     uuid.UUID `json:"userId"`
	UserName   string    `json:"userName,omitempty"`
	UserRole   string    `json:"userRole"`
	Reason     string    `json:"reason"`
	Notes      *string   `json:"notes"`
	IsPublic   bool      `json:"isPublic"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Detail is an issue with its evidence and history.
type Detail struct {
	Issue
	Evidence      []Evidence     `json:"evidence"`
	StatusUpdates []StatusUpdate `json:"statusUpdates"`
	HasUpvoted    bool           `json:"hasUpvoted"`
}

type CreateInput struct {
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	CategoryID      uuid.UUID     `json:"categoryId"`
	CityID          uuid.UUID     `json:"cityId"`
	WardID          *uuid.UUID    `json:"wardId"`
	Latitude        *float64      `json:"latitude"`
	Longitude       *float64      `json:"longitude"`
	Address         string        `json:"address"`
	ExpectedOutcome string        `json:"expectedOutcome"`
	Evidence        []EvidenceRef `json:"evidence"`
}

// NewIssue is the validated insert payload.
type NewIssue struct {
	Title           string
	Description     string
	CategoryID      uuid.UUID
	CityID          uuid.UUID
	WardID          *uuid.UUID
	ReporterID      uuid.UUID
	Latitude        *float64
	Longitude       *float64
	Address         string
	ExpectedOutcome string
	Severity        Severity
}

type UpdateInput struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	Address         *string `json:"address"`
	ExpectedOutcome *string `json:"expectedOutcome"`
}

func (in UpdateInput) empty() bool {
	return in.Title == nil && in.Description == nil && in.Address == nil && in.ExpectedOutcome == nil
}

type VerifyInput struct {
	DepartmentID uuid.UUID `json:"departmentId"`
	Severity     *string   `json:"severity"`
	Notes        *string   `json:"notes"`
}

type RejectInput struct {
	Reason string  `json:"reason"`
	Notes  *string `json:"notes"`
}

type EscalateInput struct {
	Reason string `json:"reason"`
}

// RespondInput is shared by the authority transitions.
type RespondInput struct {
	Reason string  `json:"reason"`
	Notes  *string `json:"notes"`
}

// Changes are the extra columns a transition writes besides status.
type Changes struct {
	Verify          bool
	ModeratorID     *uuid.UUID
	DepartmentID    *uuid.UUID
	Severity        *Severity
	ModeratorNotes  *string
	RejectionReason *string
	RejectedByID    *uuid.UUID
	Resolved        bool
}

// TransitionParams describes one guarded status change.
type TransitionParams struct {
	IssueID uuid.UUID
	From    []Status
	To      Status
	At      time.Time
	Changes Changes
	Update  StatusUpdate
	Audit   audit.Entry
}

type Filter struct {
	CityID     *uuid.UUID
	WardID     *uuid.UUID
	CategoryID *uuid.UUID
	ReporterID *uuid.UUID
	Statuses   []Status
	Severities []Severity
	SortBy     string
	SortDesc   bool
	Page       int
	Limit      int
}

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// SortColumns maps the accepted sort keys to SQL expressions.
var SortColumns = map[string]string{
	"createdAt":   "i.created_at",
	"updatedAt":   "i.updated_at",
	"upvoteCount": "i.upvote_count",
	"viewCount":   "i.view_count",
	"severity":    "CASE i.severity WHEN 'LOW' THEN 1 WHEN 'MEDIUM' THEN 2 WHEN 'HIGH' THEN 3 ELSE 4 END",
	"title":       "i.title",
}

type Page struct {
	Items      []Issue `json:"items"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	Total      int     `json:"total"`
	TotalPages int     `json:"totalPages"`
}

func newPage(items []Issue, page, limit, total int) Page {
	if items == nil {
		items = []Issue{}
	}
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Page{Items: items, Page: page, Limit: limit, Total: total, TotalPages: pages}
}
