package issue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/audit"
	"github.com/citywatch/api/internal/service"
	"github.com/citywatch/api/internal/taxonomy"
	"github.com/citywatch/api/internal/util"
)

// Store is the persistence contract of the lifecycle service.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (Issue, error)
	Create(ctx context.Context, in NewIssue, evidence []EvidenceRef, first StatusUpdate, entry func(uuid.UUID) audit.Entry) (Issue, error)
	IncrementViews(ctx context.Context, id uuid.UUID) (int, error)
	ListEvidence(ctx context.Context, issueID uuid.UUID) ([]Evidence, error)
	ListStatusUpdates(ctx context.Context, issueID uuid.UUID, publicOnly bool) ([]StatusUpdate, error)
	HasUpvoted(ctx context.Context, issueID, userID uuid.UUID) (bool, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateInput, at time.Time, entry audit.Entry) (Issue, error)
	Delete(ctx context.Context, id uuid.UUID, entry audit.Entry) error
	AddEvidence(ctx context.Context, id uuid.UUID, refs []EvidenceRef, entry audit.Entry) ([]Evidence, error)
	AddUpvote(ctx context.Context, issueID, userID uuid.UUID) (int, error)
	RemoveUpvote(ctx context.Context, issueID, userID uuid.UUID) (int, error)
	Transition(ctx context.Context, p TransitionParams) (Issue, error)
	List(ctx context.Context, f Filter) ([]Issue, int, error)
}

// Taxonomy resolves the reference rows an issue points at.
type Taxonomy interface {
	GetCategory(ctx context.Context, id uuid.UUID) (taxonomy.Category, error)
	GetCity(ctx context.Context, id uuid.UUID) (taxonomy.City, error)
	GetWard(ctx context.Context, id uuid.UUID) (taxonomy.Ward, error)
	GetDepartment(ctx context.Context, id uuid.UUID) (taxonomy.Department, error)
}

type Service struct {
	store    Store
	taxonomy Taxonomy
}

func NewService(store Store, tax Taxonomy) *Service {
	return &Service{store: store, taxonomy: tax}
}

const maxTitleLength = 200

var errIssueNotFound = apperr.NotFound("Issue not found")

func (s *Service) Create(ctx context.Context, p service.Principal, in CreateInput) (Issue, error) {
	if !p.Authenticated() {
		return Issue{}, apperr.Unauthorized("AUTH_REQUIRED", "Authentication required")
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := util.RequireString(in.Title, "title"); err != nil {
		return Issue{}, err
	}
	if len(in.Title) > maxTitleLength {
		return Issue{}, apperr.BadRequest("title must have at most 200 characters")
	}
	if err := util.RequireString(in.Description, "description"); err != nil {
		return Issue{}, err
	}
	if in.CategoryID == uuid.Nil {
		return Issue{}, apperr.BadRequest("categoryId is required")
	}
	if in.CityID == uuid.Nil {
		return Issue{}, apperr.BadRequest("cityId is required")
	}
	if in.Latitude != nil && (*in.Latitude < -90 || *in.Latitude > 90) {
		return Issue{}, apperr.BadRequest("latitude out of range")
	}
	if in.Longitude != nil && (*in.Longitude < -180 || *in.Longitude > 180) {
		return Issue{}, apperr.BadRequest("longitude out of range")
	}
	if err := validateRefs(in.Evidence); err != nil {
		return Issue{}, err
	}
	if err := s.checkPlacement(ctx, in); err != nil {
		return Issue{}, err
	}

	first := StatusUpdate{
		ToStatus: StatusReported,
		UserID:   p.UserID,
		UserRole: string(p.Role),
		Reason:   "Issue reported",
		IsPublic: true,
	}
	created, err := s.store.Create(ctx, NewIssue{
		Title:           in.Title,
		Description:     in.Description,
		CategoryID:      in.CategoryID,
		CityID:          in.CityID,
		WardID:          in.WardID,
		ReporterID:      p.UserID,
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		Address:         strings.TrimSpace(in.Address),
		ExpectedOutcome: strings.TrimSpace(in.ExpectedOutcome),
		Severity:        SeverityMedium,
	}, in.Evidence, first, func(id uuid.UUID) audit.Entry {
		return audit.NewEntry(ctx, p.ActorID(), string(p.Role), audit.ActionIssueCreate, audit.EntityIssue, id.String()).
			WithDetail("evidence", len(in.Evidence))
	})
	if err != nil {
		return Issue{}, fmt.Errorf("create issue: %w", err)
	}
	return created, nil
}

func (s *Service) checkPlacement(ctx context.Context, in CreateInput) error {
	category, err := s.taxonomy.GetCategory(ctx, in.CategoryID)
	if err != nil {
		if errors.Is(err, taxonomy.ErrNotFound) {
			return apperr.BadRequest("category not found")
		}
		return err
	}
	if !category.IsActive {
		return apperr.BadRequest("category is not active")
	}

	city, err := s.taxonomy.GetCity(ctx, in.CityID)
	if err != nil {
		if errors.Is(err, taxonomy.ErrNotFound) {
			return apperr.BadRequest("city not found")
		}
		return err
	}
	if !city.IsActive {
		return apperr.BadRequest("city is not active")
	}

	if in.WardID != nil {
		ward, err := s.taxonomy.GetWard(ctx, *in.WardID)
		if err != nil {
			if errors.Is(err, taxonomy.ErrNotFound) {
				return apperr.BadRequest("ward not found")
			}
			return err
		}
		if ward.CityID != in.CityID {
			return apperr.BadRequest("ward does not belong to city")
		}
	}
	return nil
}

func validateRefs(refs []EvidenceRef) error {
	for _, ref := range refs {
		if ref.Type != EvidenceImage && ref.Type != EvidenceVideo {
			return apperr.BadRequest("evidence type must be IMAGE or VIDEO")
		}
		if strings.TrimSpace(ref.FilePath) == "" {
			return apperr.BadRequest("evidence filePath is required")
		}
	}
	return nil
}

// canSee reports whether viewer may open iss in its current status.
func canSee(iss Issue, viewer service.Principal) bool {
	if iss.Status.IsPublic() || viewer.Can(service.CapViewAllIssues) {
		return true
	}
	return viewer.Authenticated() && viewer.UserID == iss.ReporterID
}

// Get loads an issue with evidence and history. Each successful call also
// increments the issue's view counter.
func (s *Service) Get(ctx context.Context, id uuid.UUID, viewer service.Principal) (Detail, error) {
	iss, err := s.load(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if !canSee(iss, viewer) {
		return Detail{}, errIssueNotFound
	}

	views, err := s.store.IncrementViews(ctx, id)
	if err != nil {
		return Detail{}, s.mapStoreErr(err)
	}
	iss.ViewCount = views

	evidence, err := s.store.ListEvidence(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	privileged := viewer.Can(service.CapViewAllIssues) || viewer.UserID == iss.ReporterID
	history, err := s.store.ListStatusUpdates(ctx, id, !privileged)
	if err != nil {
		return Detail{}, err
	}

	detail := Detail{Issue: iss, Evidence: evidence, StatusUpdates: history}
	if viewer.Authenticated() {
		detail.HasUpvoted, err = s.store.HasUpvoted(ctx, id, viewer.UserID)
		if err != nil {
			return Detail{}, err
		}
	}
	return detail, nil
}

// Timeline returns the public history ascending by time.
func (s *Service) Timeline(ctx context.Context, id uuid.UUID, viewer service.Principal) ([]StatusUpdate, error) {
	iss, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(iss, viewer) {
		return nil, errIssueNotFound
	}
	return s.store.ListStatusUpdates(ctx, id, true)
}

// ownedReported loads an issue the editor reported that is still REPORTED.
func (s *Service) ownedReported(ctx context.Context, id uuid.UUID, editor service.Principal) (Issue, error) {
	if !editor.Authenticated() {
		return Issue{}, apperr.Unauthorized("AUTH_REQUIRED", "Authentication required")
	}
	iss, err := s.load(ctx, id)
	if err != nil {
		return Issue{}, err
	}
	if iss.ReporterID != editor.UserID {
		return Issue{}, apperr.Forbidden("FORBIDDEN", "Only the reporter can modify this issue")
	}
	if iss.Status != StatusReported {
		return Issue{}, apperr.InvalidState("Issue can only be modified while REPORTED")
	}
	return iss, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, editor service.Principal, in UpdateInput) (Issue, error) {
	if _, err := s.ownedReported(ctx, id, editor); err != nil {
		return Issue{}, err
	}
	if in.empty() {
		return Issue{}, apperr.BadRequest("no fields to update")
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" || len(title) > maxTitleLength {
			return Issue{}, apperr.BadRequest("title must have between 1 and 200 characters")
		}
		in.Title = &title
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		if desc == "" {
			return Issue{}, apperr.BadRequest("description is required")
		}
		in.Description = &desc
	}

	entry := audit.NewEntry(ctx, editor.ActorID(), string(editor.Role), audit.ActionIssueUpdate, audit.EntityIssue, id.String())
	updated, err := s.store.Update(ctx, id, in, util.Now(), entry)
	if err != nil {
		return Issue{}, s.mapStoreErr(err)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID, editor service.Principal) error {
	if _, err := s.ownedReported(ctx, id, editor); err != nil {
		return err
	}
	entry := audit.NewEntry(ctx, editor.ActorID(), string(editor.Role), audit.ActionIssueDelete, audit.EntityIssue, id.String())
	return s.mapStoreErr(s.store.Delete(ctx, id, entry))
}

// AttachEvidence links more uploads to an issue still awaiting review.
func (s *Service) AttachEvidence(ctx context.Context, id uuid.UUID, editor service.Principal, refs []EvidenceRef) ([]Evidence, error) {
	if _, err := s.ownedReported(ctx, id, editor); err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, apperr.BadRequest("evidence is required")
	}
	if err := validateRefs(refs); err != nil {
		return nil, err
	}
	entry := audit.NewEntry(ctx, editor.ActorID(), string(editor.Role), audit.ActionIssueEvidence, audit.EntityIssue, id.String()).
		WithDetail("count", len(refs))
	added, err := s.store.AddEvidence(ctx, id, refs, entry)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return added, nil
}

func (s *Service) Upvote(ctx context.Context, id uuid.UUID, voter service.Principal) (int, error) {
	if err := s.upvotable(ctx, id, voter); err != nil {
		return 0, err
	}
	count, err := s.store.AddUpvote(ctx, id, voter.UserID)
	if errors.Is(err, ErrDuplicate) {
		return 0, apperr.Conflict("ALREADY_UPVOTED", "You have already upvoted this issue")
	}
	if err != nil {
		return 0, s.mapStoreErr(err)
	}
	return count, nil
}

func (s *Service) RemoveUpvote(ctx context.Context, id uuid.UUID, voter service.Principal) (int, error) {
	if err := s.upvotable(ctx, id, voter); err != nil {
		return 0, err
	}
	count, err := s.store.RemoveUpvote(ctx, id, voter.UserID)
	if errors.Is(err, ErrNotFound) {
		return 0, apperr.NotFound("Upvote not found")
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Service) upvotable(ctx context.Context, id uuid.UUID, voter service.Principal) error {
	if !voter.Authenticated() {
		return apperr.Unauthorized("AUTH_REQUIRED", "Authentication required")
	}
	iss, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !iss.IsVerified {
		return apperr.InvalidState("Only verified issues can be upvoted")
	}
	return nil
}

func (s *Service) StartReview(ctx context.Context, id uuid.UUID, moderator service.Principal) (Issue, error) {
	return s.moderate(ctx, id, moderator, StatusUnderReview, Changes{}, "Issue under review", nil, audit.ActionIssueReview)
}

func (s *Service) Verify(ctx context.Context, id uuid.UUID, moderator service.Principal, in VerifyInput) (Issue, error) {
	if _, err := service.ModerationScope(moderator); err != nil {
		return Issue{}, err
	}
	if in.DepartmentID == uuid.Nil {
		return Issue{}, apperr.BadRequest("departmentId is required")
	}
	changes := Changes{
		Verify:         true,
		ModeratorID:    moderator.ActorID(),
		DepartmentID:   &in.DepartmentID,
		ModeratorNotes: trimmed(in.Notes),
	}
	if in.Severity != nil {
		sev, ok := ParseSeverity(*in.Severity)
		if !ok {
			return Issue{}, apperr.BadRequest("severity must be one of LOW, MEDIUM, HIGH, CRITICAL")
		}
		changes.Severity = &sev
	}

	dept, err := s.taxonomy.GetDepartment(ctx, in.DepartmentID)
	if err != nil {
		if errors.Is(err, taxonomy.ErrNotFound) {
			return Issue{}, apperr.BadRequest("department not found")
		}
		return Issue{}, err
	}

	return s.moderateChecked(ctx, id, moderator, StatusVerified, changes, "Issue verified by moderator", changes.ModeratorNotes, audit.ActionIssueVerify,
		func(iss Issue) error {
			if dept.CityID != iss.CityID {
				return apperr.BadRequest("department does not belong to the issue's city")
			}
			return nil
		})
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID, moderator service.Principal, in RejectInput) (Issue, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return Issue{}, apperr.BadRequest("reason is required")
	}
	notes := trimmed(in.Notes)
	changes := Changes{
		RejectionReason: &reason,
		RejectedByID:    moderator.ActorID(),
		ModeratorNotes:  notes,
	}
	return s.moderate(ctx, id, moderator, StatusRejected, changes, reason, notes, audit.ActionIssueReject)
}

func (s *Service) Escalate(ctx context.Context, id uuid.UUID, moderator service.Principal, in EscalateInput) (Issue, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "Escalated by moderator"
	}
	high := SeverityHigh
	return s.moderate(ctx, id, moderator, StatusEscalated, Changes{Severity: &high}, reason, nil, audit.ActionIssueEscalate)
}

func (s *Service) MarkActionTaken(ctx context.Context, id uuid.UUID, actor service.Principal, in RespondInput) (Issue, error) {
	return s.respond(ctx, id, actor, StatusActionTaken, Changes{}, withDefault(in.Reason, "Action taken by authority"), trimmed(in.Notes), audit.ActionIssueAction)
}

func (s *Service) Resolve(ctx context.Context, id uuid.UUID, actor service.Principal, in RespondInput) (Issue, error) {
	return s.respond(ctx, id, actor, StatusResolved, Changes{Resolved: true}, withDefault(in.Reason, "Issue resolved"), trimmed(in.Notes), audit.ActionIssueResolve)
}

func (s *Service) Close(ctx context.Context, id uuid.UUID, actor service.Principal, in RespondInput) (Issue, error) {
	return s.respond(ctx, id, actor, StatusClosed, Changes{}, withDefault(in.Reason, "Issue closed"), trimmed(in.Notes), audit.ActionIssueClose)
}

func (s *Service) moderate(ctx context.Context, id uuid.UUID, p service.Principal, to Status, changes Changes, reason string, notes *string, action string) (Issue, error) {
	return s.moderateChecked(ctx, id, p, to, changes, reason, notes, action, nil)
}

func (s *Service) moderateChecked(ctx context.Context, id uuid.UUID, p service.Principal, to Status, changes Changes, reason string, notes *string, action string, check func(Issue) error) (Issue, error) {
	scope, err := service.ModerationScope(p)
	if err != nil {
		return Issue{}, err
	}
	return s.transition(ctx, id, p, to, changes, reason, notes, action, func(iss Issue) error {
		if !service.InScope(scope, iss.CityID) {
			return apperr.Forbidden("FORBIDDEN", "Issue is outside your jurisdiction")
		}
		if check != nil {
			return check(iss)
		}
		return nil
	})
}

func (s *Service) respond(ctx context.Context, id uuid.UUID, p service.Principal, to Status, changes Changes, reason string, notes *string, action string) (Issue, error) {
	if err := service.Require(p, service.CapRespondToIssues); err != nil {
		return Issue{}, err
	}
	return s.transition(ctx, id, p, to, changes, reason, notes, action, func(iss Issue) error {
		if p.AssignedCityID != nil && *p.AssignedCityID != iss.CityID {
			return apperr.Forbidden("FORBIDDEN", "Issue is outside your jurisdiction")
		}
		return nil
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, p service.Principal, to Status, changes Changes, reason string, notes *string, action string, check func(Issue) error) (Issue, error) {
	iss, err := s.load(ctx, id)
	if err != nil {
		return Issue{}, err
	}
	if err := check(iss); err != nil {
		return Issue{}, err
	}
	if !iss.Status.CanTransitionTo(to) {
		return Issue{}, invalidTransition(iss.Status, to)
	}

	updated, err := s.store.Transition(ctx, TransitionParams{
		IssueID: id,
		From:    SourcesOf(to),
		To:      to,
		At:      util.Now(),
		Changes: changes,
		Update: StatusUpdate{
			UserID:   p.UserID,
			UserRole: string(p.Role),
			Reason:   reason,
			Notes:    notes,
			IsPublic: true,
		},
		Audit: audit.NewEntry(ctx, p.ActorID(), string(p.Role), action, audit.EntityIssue, id.String()),
	})
	if errors.Is(err, ErrStaleState) {
		return Issue{}, invalidTransition(iss.Status, to)
	}
	if err != nil {
		return Issue{}, s.mapStoreErr(err)
	}
	return updated, nil
}

func invalidTransition(from, to Status) error {
	return apperr.InvalidState(fmt.Sprintf("Cannot move issue from %s to %s", from, to))
}

// List pages through issues visible to viewer.
func (s *Service) List(ctx context.Context, f Filter, viewer service.Principal) (Page, error) {
	if err := normalizeFilter(&f); err != nil {
		return Page{}, err
	}
	if !viewer.Can(service.CapViewAllIssues) {
		f.Statuses = restrictToPublic(f.Statuses)
		if len(f.Statuses) == 0 {
			return newPage(nil, f.Page, f.Limit, 0), nil
		}
	}

	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return Page{}, fmt.Errorf("list issues: %w", err)
	}
	return newPage(items, f.Page, f.Limit, total), nil
}

// Mine lists the reporter's own issues in every status, newest first.
func (s *Service) Mine(ctx context.Context, reporter service.Principal, page, limit int) (Page, error) {
	if !reporter.Authenticated() {
		return Page{}, apperr.Unauthorized("AUTH_REQUIRED", "Authentication required")
	}
	id := reporter.UserID
	f := Filter{ReporterID: &id, SortBy: "createdAt", SortDesc: true, Page: page, Limit: limit}
	if err := normalizeFilter(&f); err != nil {
		return Page{}, err
	}
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return Page{}, fmt.Errorf("list own issues: %w", err)
	}
	return newPage(items, f.Page, f.Limit, total), nil
}

func normalizeFilter(f *Filter) error {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.SortBy == "" {
		f.SortBy = "createdAt"
		f.SortDesc = true
	}
	if _, ok := SortColumns[f.SortBy]; !ok {
		return apperr.BadRequest("unsupported sort field " + f.SortBy)
	}
	return nil
}

// restrictToPublic intersects requested with PubliclyListed; an empty
// request means every publicly listed status.
func restrictToPublic(requested []Status) []Status {
	if len(requested) == 0 {
		return append([]Status(nil), PubliclyListed...)
	}
	var out []Status
	for _, s := range requested {
		if containsStatus(PubliclyListed, s) && !containsStatus(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (Issue, error) {
	iss, err := s.store.Get(ctx, id)
	if err != nil {
		return Issue{}, s.mapStoreErr(err)
	}
	return iss, nil
}

func (s *Service) mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return errIssueNotFound
	case errors.Is(err, ErrStaleState):
		return apperr.InvalidState("Issue status changed, reload and retry")
	default:
		return err
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func withDefault(v, def string) string {
	if t := strings.TrimSpace(v); t != "" {
		return t
	}
	return def
}
