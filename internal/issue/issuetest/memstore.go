// Package issuetest provides in-memory stores for tests of code built on the issue package.
package issuetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citywatch/api/internal/audit"
	"github.com/citywatch/api/internal/issue"
	"github.com/citywatch/api/internal/taxonomy"
)

// MemStore implements issue.Store with the same guards as the SQL repository.
type MemStore struct {
	mu       sync.Mutex
	issues   map[uuid.UUID]issue.Issue
	evidence map[uuid.UUID][]issue.Evidence
	history  map[uuid.UUID][]issue.StatusUpdate
	upvotes  map[uuid.UUID]map[uuid.UUID]struct{}
	Audits   []audit.Entry
	clock    time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		issues:   map[uuid.UUID]issue.Issue{},
		evidence: map[uuid.UUID][]issue.Evidence{},
		history:  map[uuid.UUID][]issue.StatusUpdate{},
		upvotes:  map[uuid.UUID]map[uuid.UUID]struct{}{},
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick returns strictly increasing timestamps so ordering is deterministic.
func (m *MemStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

// Put stores iss as-is, for arranging test fixtures.
func (m *MemStore) Put(iss issue.Issue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if iss.CreatedAt.IsZero() {
		iss.CreatedAt = m.tick()
	}
	m.issues[iss.ID] = iss
}

// History returns every status update for id, public or not.
func (m *MemStore) History(id uuid.UUID) []issue.StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]issue.StatusUpdate(nil), m.history[id]...)
}

func (m *MemStore) UpvoteRows(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upvotes[id])
}

func (m *MemStore) Get(ctx context.Context, id uuid.UUID) (issue.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iss, ok := m.issues[id]
	if !ok {
		return issue.Issue{}, issue.ErrNotFound
	}
	return iss, nil
}

func (m *MemStore) Create(ctx context.Context, in issue.NewIssue, refs []issue.EvidenceRef, first issue.StatusUpdate, entry func(uuid.UUID) audit.Entry) (issue.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.tick()
	iss := issue.Issue{
		ID:              uuid.New(),
		Title:           in.Title,
		Description:     in.Description,
		CategoryID:      in.CategoryID,
		CityID:          in.CityID,
		WardID:          in.WardID,
		ReporterID:      in.ReporterID,
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		Address:         in.Address,
		ExpectedOutcome: in.ExpectedOutcome,
		Severity:        in.Severity,
		Status:          issue.StatusReported,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.issues[iss.ID] = iss
	m.appendEvidence(iss.ID, refs)
	first.ID = uuid.New()
	first.IssueID = iss.ID
	first.CreatedAt = now
	m.history[iss.ID] = append(m.history[iss.ID], first)
	m.Audits = append(m.Audits, entry(iss.ID))
	return iss, nil
}

func (m *MemStore) appendEvidence(id uuid.UUID, refs []issue.EvidenceRef) []issue.Evidence {
	out := make([]issue.Evidence, 0, len(refs))
	for _, ref := range refs {
		e := issue.Evidence{
			ID:        uuid.New(),
			IssueID:   id,
			Type:      ref.Type,
			FilePath:  ref.FilePath,
			FileName:  ref.FileName,
			FileSize:  ref.FileSize,
			MimeType:  ref.MimeType,
			CreatedAt: m.tick(),
		}
		m.evidence[id] = append(m.evidence[id], e)
		out = append(out, e)
	}
	return out
}

func (m *MemStore) IncrementViews(ctx context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iss, ok := m.issues[id]
	if !ok {
		return 0, issue.ErrNotFound
	}
	iss.ViewCount++
	m.issues[id] = iss
	return iss.ViewCount, nil
}

func (m *MemStore) ListEvidence(ctx context.Context, id uuid.UUID) ([]issue.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]issue.Evidence{}, m.evidence[id]...), nil
}

func (m *MemStore) ListStatusUpdates(ctx context.Context, id uuid.UUID, publicOnly bool) ([]issue.StatusUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []issue.StatusUpdate{}
	for _, su := range m.history[id] {
		if publicOnly && !su.IsPublic {
			continue
		}
		out = append(out, su)
	}
	return out, nil
}

func (m *MemStore) HasUpvoted(ctx context.Context, issueID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.upvotes[issueID][userID]
	return ok, nil
}

func (m *MemStore) Update(ctx context.Context, id uuid.UUID, in issue.UpdateInput, at time.Time, entry audit.Entry) (issue.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iss, ok := m.issues[id]
	if !ok || iss.Status != issue.StatusReported {
		return issue.Issue{}, issue.ErrStaleState
	}
	if in.Title != nil {
		iss.Title = *in.Title
	}
	if in.Description != nil {
		iss.Description = *in.Description
	}
	if in.Address != nil {
		iss.Address = *in.Address
	}
	if in.ExpectedOutcome != nil {
		iss.ExpectedOutcome = *in.ExpectedOutcome
	}
	iss.UpdatedAt = at
	m.issues[id] = iss
	m.Audits = append(m.Audits, entry)
	return iss, nil
}

func (m *MemStore) Delete(ctx context.Context, id uuid.UUID, entry audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	iss, ok := m.issues[id]
	if !ok || iss.Status != issue.StatusReported {
		return issue.ErrStaleState
	}
	delete(m.issues, id)
	delete(m.evidence, id)
	delete(m.history, id)
	delete(m.upvotes, id)
	m.Audits = append(m.Audits, entry)
	return nil
}

func (m *MemStore) AddEvidence(ctx context.Context, id uuid.UUID, refs []issue.EvidenceRef, entry audit.Entry) ([]issue.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iss, ok := m.issues[id]
	if !ok {
		return nil, issue.ErrNotFound
	}
	if iss.Status != issue.StatusReported {
		return nil, issue.ErrStaleState
	}
	added := m.appendEvidence(id, refs)
	m.Audits = append(m.Audits, entry)
	return added, nil
}

func (m *MemStore) AddUpvote(ctx context.Context, issueID, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iss, ok := m.issues[issueID]
	if !ok {
		return 0, issue.ErrNotFound
	}
	votes := m.upvotes[issueID]
	if votes == nil {
		votes = map[uuid.UUID]struct{}{}
		m.upvotes[issueID] = votes
	}
	if _, dup := votes[userID]; dup {
		return 0, issue.ErrDuplicate
	}
	votes[userID] = struct{}{}
	iss.UpvoteCount++
	m.issues[issueID] = iss
	return iss.UpvoteCount, nil
}

func (m *MemStore) RemoveUpvote(ctx context.Context, issueID, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.upvotes[issueID][userID]; !ok {
		return 0, issue.ErrNotFound
	}
	delete(m.upvotes[issueID], userID)
	iss := m.issues[issueID]
	if iss.UpvoteCount > 0 {
		iss.UpvoteCount--
	}
	m.issues[issueID] = iss
	return iss.UpvoteCount, nil
}

func (m *MemStore) Transition(ctx context.Context, p issue.TransitionParams) (issue.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iss, ok := m.issues[p.IssueID]
	if !ok {
		return issue.Issue{}, issue.ErrNotFound
	}
	from := iss.Status
	allowed := false
	for _, s := range p.From {
		if s == from {
			allowed = true
		}
	}
	if !allowed {
		return issue.Issue{}, issue.ErrStaleState
	}

	at := p.At
	iss.Status = p.To
	iss.UpdatedAt = at
	c := p.Changes
	if c.Verify {
		iss.IsVerified = true
		iss.VerifiedAt = &at
		iss.ModeratorID = c.ModeratorID
	}
	if c.DepartmentID != nil {
		iss.DepartmentID = c.DepartmentID
	}
	if c.Severity != nil {
		iss.Severity = *c.Severity
	}
	if c.ModeratorNotes != nil {
		iss.ModeratorNotes = c.ModeratorNotes
	}
	if c.RejectionReason != nil {
		iss.RejectionReason = c.RejectionReason
	}
	if c.RejectedByID != nil {
		iss.RejectedByID = c.RejectedByID
	}
	if c.Resolved {
		iss.ResolvedAt = &at
	}
	m.issues[p.IssueID] = iss

	su := p.Update
	su.ID = uuid.New()
	su.IssueID = p.IssueID
	su.FromStatus = &from
	su.ToStatus = p.To
	su.CreatedAt = m.tick()
	m.history[p.IssueID] = append(m.history[p.IssueID], su)
	m.Audits = append(m.Audits, p.Audit)
	return iss, nil
}

func (m *MemStore) List(ctx context.Context, f issue.Filter) ([]issue.Issue, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []issue.Issue
	for _, iss := range m.issues {
		if matches(iss, f) {
			matched = append(matched, iss)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		less := lessBy(f.SortBy, matched[i], matched[j])
		if f.SortDesc {
			return lessBy(f.SortBy, matched[j], matched[i])
		}
		return less
	})

	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return append([]issue.Issue{}, matched[start:end]...), total, nil
}

// Queue mirrors Repository.Queue.
func (m *MemStore) Queue(ctx context.Context, statuses []issue.Status, cityID *uuid.UUID, limit int) ([]issue.Issue, error) {
	items, _, err := m.List(ctx, issue.Filter{CityID: cityID, Statuses: statuses, SortBy: "createdAt", Page: 1, Limit: limit})
	return items, err
}

func (m *MemStore) StatusCounts(ctx context.Context, cityID *uuid.UUID) (map[issue.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[issue.Status]int{}
	for _, iss := range m.issues {
		if cityID == nil || iss.CityID == *cityID {
			counts[iss.Status]++
		}
	}
	return counts, nil
}

func matches(iss issue.Issue, f issue.Filter) bool {
	if f.CityID != nil && iss.CityID != *f.CityID {
		return false
	}
	if f.WardID != nil && (iss.WardID == nil || *iss.WardID != *f.WardID) {
		return false
	}
	if f.CategoryID != nil && iss.CategoryID != *f.CategoryID {
		return false
	}
	if f.ReporterID != nil && iss.ReporterID != *f.ReporterID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, iss.Status) {
		return false
	}
	if len(f.Severities) > 0 {
		found := false
		for _, s := range f.Severities {
			if s == iss.Severity {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsStatus(list []issue.Status, s issue.Status) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

var severityRank = map[issue.Severity]int{
	issue.SeverityLow: 1, issue.SeverityMedium: 2, issue.SeverityHigh: 3, issue.SeverityCritical: 4,
}

func lessBy(field string, a, b issue.Issue) bool {
	switch field {
	case "updatedAt":
		return a.UpdatedAt.Before(b.UpdatedAt)
	case "upvoteCount":
		return a.UpvoteCount < b.UpvoteCount
	case "viewCount":
		return a.ViewCount < b.ViewCount
	case "severity":
		return severityRank[a.Severity] < severityRank[b.Severity]
	case "title":
		return a.Title < b.Title
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

// Taxonomy is a fixed in-memory reference set.
type Taxonomy struct {
	Categories  map[uuid.UUID]taxonomy.Category
	Cities      map[uuid.UUID]taxonomy.City
	Wards       map[uuid.UUID]taxonomy.Ward
	Departments map[uuid.UUID]taxonomy.Department
}

// Fixture is a ready-made city with one ward, one department and one category.
type Fixture struct {
	Taxonomy     *Taxonomy
	CityID       uuid.UUID
	OtherCityID  uuid.UUID
	WardID       uuid.UUID
	DepartmentID uuid.UUID
	CategoryID   uuid.UUID
}

func NewFixture() Fixture {
	f := Fixture{
		CityID:       uuid.New(),
		OtherCityID:  uuid.New(),
		WardID:       uuid.New(),
		DepartmentID: uuid.New(),
		CategoryID:   uuid.New(),
	}
	f.Taxonomy = &Taxonomy{
		Categories: map[uuid.UUID]taxonomy.Category{
			f.CategoryID: {ID: f.CategoryID, Name: "Roads", Slug: "roads", IsActive: true},
		},
		Cities: map[uuid.UUID]taxonomy.City{
			f.CityID:      {ID: f.CityID, Name: "Nagpur", IsActive: true},
			f.OtherCityID: {ID: f.OtherCityID, Name: "Pune", IsActive: true},
		},
		Wards: map[uuid.UUID]taxonomy.Ward{
			f.WardID: {ID: f.WardID, Name: "Dharampeth", Number: "1", CityID: f.CityID},
		},
		Departments: map[uuid.UUID]taxonomy.Department{
			f.DepartmentID: {ID: f.DepartmentID, Name: "Public Works", Code: "PWD", CityID: f.CityID},
		},
	}
	return f
}

func (t *Taxonomy) GetCategory(ctx context.Context, id uuid.UUID) (taxonomy.Category, error) {
	if c, ok := t.Categories[id]; ok {
		return c, nil
	}
	return taxonomy.Category{}, taxonomy.ErrNotFound
}

func (t *Taxonomy) GetCity(ctx context.Context, id uuid.UUID) (taxonomy.City, error) {
	if c, ok := t.Cities[id]; ok {
		return c, nil
	}
	return taxonomy.City{}, taxonomy.ErrNotFound
}

func (t *Taxonomy) GetWard(ctx context.Context, id uuid.UUID) (taxonomy.Ward, error) {
	if w, ok := t.Wards[id]; ok {
		return w, nil
	}
	return taxonomy.Ward{}, taxonomy.ErrNotFound
}

func (t *Taxonomy) GetDepartment(ctx context.Context, id uuid.UUID) (taxonomy.Department, error) {
	if d, ok := t.Departments[id]; ok {
		return d, nil
	}
	return taxonomy.Department{}, taxonomy.ErrNotFound
}
