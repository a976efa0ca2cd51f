package issue_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/audit"
	"github.com/citywatch/api/internal/issue"
	"github.com/citywatch/api/internal/issue/issuetest"
	"github.com/citywatch/api/internal/repo"
	"github.com/citywatch/api/internal/service"
)

type env struct {
	svc       *issue.Service
	store     *issuetest.MemStore
	fx        issuetest.Fixture
	citizen   service.Principal
	other     service.Principal
	moderator service.Principal
	authority service.Principal
}

func newEnv() env {
	fx := issuetest.NewFixture()
	store := issuetest.NewMemStore()
	city := fx.CityID
	return env{
		svc:       issue.NewService(store, fx.Taxonomy),
		store:     store,
		fx:        fx,
		citizen:   service.Principal{UserID: uuid.New(), Role: repo.RoleCitizen},
		other:     service.Principal{UserID: uuid.New(), Role: repo.RoleCitizen},
		moderator: service.Principal{UserID: uuid.New(), Role: repo.RoleModerator, AssignedCityID: &city},
		authority: service.Principal{UserID: uuid.New(), Role: repo.RoleAuthority},
	}
}

func (e env) report(t *testing.T) issue.Issue {
	t.Helper()
	iss, err := e.svc.Create(context.Background(), e.citizen, issue.CreateInput{
		Title:       "Pothole near school",
		Description: "Deep pothole on the main road",
		CategoryID:  e.fx.CategoryID,
		CityID:      e.fx.CityID,
		WardID:      &e.fx.WardID,
		Evidence: []issue.EvidenceRef{
			{Type: issue.EvidenceImage, FilePath: "/uploads/a.jpg", FileName: "a.jpg", FileSize: 10, MimeType: "image/jpeg"},
		},
	})
	require.NoError(t, err)
	return iss
}

func (e env) verify(t *testing.T, id uuid.UUID) issue.Issue {
	t.Helper()
	iss, err := e.svc.Verify(context.Background(), id, e.moderator, issue.VerifyInput{DepartmentID: e.fx.DepartmentID})
	require.NoError(t, err)
	return iss
}

func assertVerificationInvariant(t *testing.T, iss issue.Issue) {
	t.Helper()
	assert.Equal(t, iss.IsVerified, iss.VerifiedAt != nil, "verifiedAt must track isVerified")
	assert.Equal(t, iss.IsVerified, iss.ModeratorID != nil, "moderatorId must track isVerified")
}

func TestCreateStartsReported(t *testing.T) {
	e := newEnv()
	iss := e.report(t)

	assert.Equal(t, issue.StatusReported, iss.Status)
	assert.Equal(t, issue.SeverityMedium, iss.Severity)
	assert.False(t, iss.IsVerified)
	assertVerificationInvariant(t, iss)

	history := e.store.History(iss.ID)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].FromStatus)
	assert.Equal(t, issue.StatusReported, history[0].ToStatus)
	assert.True(t, history[0].IsPublic)

	evidence, err := e.store.ListEvidence(context.Background(), iss.ID)
	require.NoError(t, err)
	assert.Len(t, evidence, 1)
	assert.Equal(t, audit.ActionIssueCreate, e.store.Audits[0].Action)
}

func TestCreateValidatesPlacement(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	base := issue.CreateInput{Title: "Broken light", Description: "Dark street", CategoryID: e.fx.CategoryID, CityID: e.fx.CityID}

	in := base
	in.Title = "  "
	_, err := e.svc.Create(ctx, e.citizen, in)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	in = base
	in.CategoryID = uuid.New()
	_, err = e.svc.Create(ctx, e.citizen, in)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	in = base
	in.CityID = e.fx.OtherCityID
	in.WardID = &e.fx.WardID
	_, err = e.svc.Create(ctx, e.citizen, in)
	assert.EqualError(t, err, "ward does not belong to city")

	_, err = e.svc.Create(ctx, service.Anonymous(), base)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestVerificationInvariantAcrossTransitions(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	rejected := e.report(t)
	rejected, err := e.svc.Reject(ctx, rejected.ID, e.moderator, issue.RejectInput{Reason: "Duplicate"})
	require.NoError(t, err)
	assert.Equal(t, issue.StatusRejected, rejected.Status)
	assert.False(t, rejected.IsVerified)
	assert.Equal(t, &e.moderator.UserID, rejected.RejectedByID)
	assertVerificationInvariant(t, rejected)

	escalated := e.report(t)
	escalated, err = e.svc.Escalate(ctx, escalated.ID, e.moderator, issue.EscalateInput{})
	require.NoError(t, err)
	assert.False(t, escalated.IsVerified)
	assertVerificationInvariant(t, escalated)

	verified := e.report(t)
	verified, err = e.svc.StartReview(ctx, verified.ID, e.moderator)
	require.NoError(t, err)
	assert.Equal(t, issue.StatusUnderReview, verified.Status)
	verified = e.verify(t, verified.ID)
	assert.True(t, verified.IsVerified)
	assert.Equal(t, &e.fx.DepartmentID, verified.DepartmentID)
	assertVerificationInvariant(t, verified)

	resolved, err := e.svc.Resolve(ctx, verified.ID, e.authority, issue.RespondInput{})
	require.NoError(t, err)
	assert.True(t, resolved.IsVerified)
	assert.NotNil(t, resolved.ResolvedAt)
	assertVerificationInvariant(t, resolved)
}

func TestVerifyRequiresDepartmentInCity(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	iss := e.report(t)

	_, err := e.svc.Verify(ctx, iss.ID, e.moderator, issue.VerifyInput{})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	_, err = e.svc.Verify(ctx, iss.ID, e.moderator, issue.VerifyInput{DepartmentID: uuid.New()})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	bad := "EXTREME"
	_, err = e.svc.Verify(ctx, iss.ID, e.moderator, issue.VerifyInput{DepartmentID: e.fx.DepartmentID, Severity: &bad})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	critical := "critical"
	verified, err := e.svc.Verify(ctx, iss.ID, e.moderator, issue.VerifyInput{DepartmentID: e.fx.DepartmentID, Severity: &critical})
	require.NoError(t, err)
	assert.Equal(t, issue.SeverityCritical, verified.Severity)

	_, err = e.svc.Verify(ctx, iss.ID, e.moderator, issue.VerifyInput{DepartmentID: e.fx.DepartmentID})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestSingleUpvotePerUser(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	iss := e.report(t)

	_, err := e.svc.Upvote(ctx, iss.ID, e.other)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err), "unverified issues cannot be upvoted")

	e.verify(t, iss.ID)

	count, err := e.svc.Upvote(ctx, iss.ID, e.other)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	for i := 0; i < 3; i++ {
		_, err = e.svc.Upvote(ctx, iss.ID, e.other)
		appErr, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindConflict, appErr.Kind)
		assert.Equal(t, "ALREADY_UPVOTED", appErr.Code)
	}
	assert.Equal(t, 1, e.store.UpvoteRows(iss.ID))

	count, err = e.svc.Upvote(ctx, iss.ID, e.citizen)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = e.svc.RemoveUpvote(ctx, iss.ID, e.other)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = e.svc.RemoveUpvote(ctx, iss.ID, e.other)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = e.svc.Upvote(ctx, uuid.New(), e.other)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestModerationLocksEditing(t *testing.T) {
	actions := map[string]func(e env, id uuid.UUID) error{
		"verify": func(e env, id uuid.UUID) error {
			_, err := e.svc.Verify(context.Background(), id, e.moderator, issue.VerifyInput{DepartmentID: e.fx.DepartmentID})
			return err
		},
		"reject": func(e env, id uuid.UUID) error {
			_, err := e.svc.Reject(context.Background(), id, e.moderator, issue.RejectInput{Reason: "Spam"})
			return err
		},
		"escalate": func(e env, id uuid.UUID) error {
			_, err := e.svc.Escalate(context.Background(), id, e.moderator, issue.EscalateInput{})
			return err
		},
	}

	for name, act := range actions {
		t.Run(name, func(t *testing.T) {
			e := newEnv()
			ctx := context.Background()
			iss := e.report(t)

			title := "Updated title"
			_, err := e.svc.Update(ctx, iss.ID, e.citizen, issue.UpdateInput{Title: &title})
			require.NoError(t, err)

			require.NoError(t, act(e, iss.ID))

			_, err = e.svc.Update(ctx, iss.ID, e.citizen, issue.UpdateInput{Title: &title})
			assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
			assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(e.svc.Delete(ctx, iss.ID, e.citizen)))

			_, err = e.svc.AttachEvidence(ctx, iss.ID, e.citizen, []issue.EvidenceRef{{Type: issue.EvidenceImage, FilePath: "/uploads/b.png"}})
			assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
		})
	}
}

func TestEditGuards(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	iss := e.report(t)

	title := "Hijacked"
	_, err := e.svc.Update(ctx, iss.ID, e.other, issue.UpdateInput{Title: &title})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = e.svc.Update(ctx, uuid.New(), e.citizen, issue.UpdateInput{Title: &title})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = e.svc.Update(ctx, iss.ID, e.citizen, issue.UpdateInput{})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	added, err := e.svc.AttachEvidence(ctx, iss.ID, e.citizen, []issue.EvidenceRef{{Type: issue.EvidenceVideo, FilePath: "/uploads/c.mp4"}})
	require.NoError(t, err)
	assert.Len(t, added, 1)

	require.NoError(t, e.svc.Delete(ctx, iss.ID, e.citizen))
	_, err = e.store.Get(ctx, iss.ID)
	assert.ErrorIs(t, err, issue.ErrNotFound)
}

func TestEscalateForcesHighSeverity(t *testing.T) {
	for _, start := range []issue.Severity{issue.SeverityLow, issue.SeverityMedium, issue.SeverityCritical} {
		e := newEnv()
		iss := issue.Issue{ID: uuid.New(), CityID: e.fx.CityID, ReporterID: e.citizen.UserID, Status: issue.StatusReported, Severity: start}
		e.store.Put(iss)

		escalated, err := e.svc.Escalate(context.Background(), iss.ID, e.moderator, issue.EscalateInput{Reason: "Urgent"})
		require.NoError(t, err)
		assert.Equal(t, issue.SeverityHigh, escalated.Severity, "from %s", start)
		assert.Equal(t, issue.StatusEscalated, escalated.Status)
	}
}

func TestTransitionTableRejectsIllegalMoves(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	iss := e.report(t)

	_, err := e.svc.Resolve(ctx, iss.ID, e.authority, issue.RespondInput{})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = e.svc.Reject(ctx, iss.ID, e.moderator, issue.RejectInput{Reason: "  "})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	e.verify(t, iss.ID)
	_, err = e.svc.MarkActionTaken(ctx, iss.ID, e.authority, issue.RespondInput{Notes: strPtr("crew dispatched")})
	require.NoError(t, err)
	closed, err := e.svc.Close(ctx, iss.ID, e.authority, issue.RespondInput{})
	require.NoError(t, err)
	assert.Equal(t, issue.StatusClosed, closed.Status)
	assert.True(t, closed.Status.Terminal())

	_, err = e.svc.Escalate(ctx, iss.ID, e.moderator, issue.EscalateInput{})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestJurisdictionAndCapabilities(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	iss := e.report(t)

	otherCity := e.fx.OtherCityID
	outsider := service.Principal{UserID: uuid.New(), Role: repo.RoleModerator, AssignedCityID: &otherCity}
	_, err := e.svc.Escalate(ctx, iss.ID, outsider, issue.EscalateInput{})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	unassigned := service.Principal{UserID: uuid.New(), Role: repo.RoleModerator}
	_, err = e.svc.StartReview(ctx, iss.ID, unassigned)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = e.svc.Escalate(ctx, iss.ID, e.authority, issue.EscalateInput{})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err), "authorities cannot moderate")

	_, err = e.svc.Close(ctx, iss.ID, e.moderator, issue.RespondInput{})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err), "moderators cannot close")

	admin := service.Principal{UserID: uuid.New(), Role: repo.RoleSuperAdmin}
	_, err = e.svc.Escalate(ctx, iss.ID, admin, issue.EscalateInput{})
	require.NoError(t, err)
}

func TestListHidesUnreviewedFromPublic(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	statuses := []issue.Status{
		issue.StatusReported, issue.StatusUnderReview, issue.StatusRejected, issue.StatusVerified,
		issue.StatusEscalated, issue.StatusActionTaken, issue.StatusClosed, issue.StatusResolved,
	}
	for _, s := range statuses {
		e.store.Put(issue.Issue{ID: uuid.New(), CityID: e.fx.CityID, ReporterID: e.citizen.UserID, Status: s, Severity: issue.SeverityMedium})
	}
	hidden := map[issue.Status]bool{issue.StatusReported: true, issue.StatusUnderReview: true, issue.StatusRejected: true}

	for _, viewer := range []service.Principal{service.Anonymous(), e.citizen} {
		page, err := e.svc.List(ctx, issue.Filter{}, viewer)
		require.NoError(t, err)
		assert.Equal(t, 4, page.Total)
		for _, iss := range page.Items {
			assert.False(t, hidden[iss.Status], "public list leaked %s", iss.Status)
		}

		page, err = e.svc.List(ctx, issue.Filter{Statuses: []issue.Status{issue.StatusReported, issue.StatusRejected}}, viewer)
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Equal(t, 0, page.Total)
	}

	page, err := e.svc.List(ctx, issue.Filter{}, e.moderator)
	require.NoError(t, err)
	assert.Equal(t, len(statuses), page.Total)

	page, err = e.svc.List(ctx, issue.Filter{Statuses: []issue.Status{issue.StatusReported}}, e.authority)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestListPagination(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		e.store.Put(issue.Issue{ID: uuid.New(), CityID: e.fx.CityID, Status: issue.StatusVerified, Severity: issue.SeverityLow})
	}

	page, err := e.svc.List(ctx, issue.Filter{}, service.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)
	assert.Len(t, page.Items, 20)
	assert.Equal(t, 2, page.TotalPages)

	page, err = e.svc.List(ctx, issue.Filter{Page: 2, Limit: 500}, service.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.Empty(t, page.Items)

	_, err = e.svc.List(ctx, issue.Filter{SortBy: "password"}, service.Anonymous())
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestGetVisibilityAndViews(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	iss := e.report(t)

	_, err := e.svc.Get(ctx, iss.ID, service.Anonymous())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = e.svc.Get(ctx, iss.ID, e.other)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	detail, err := e.svc.Get(ctx, iss.ID, e.citizen)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.ViewCount)
	assert.Len(t, detail.Evidence, 1)

	detail, err = e.svc.Get(ctx, iss.ID, e.moderator)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.ViewCount)

	e.verify(t, iss.ID)
	detail, err = e.svc.Get(ctx, iss.ID, service.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, 3, detail.ViewCount)
	assert.Len(t, detail.StatusUpdates, 2)
	assert.False(t, detail.HasUpvoted)

	timeline, err := e.svc.Timeline(ctx, iss.ID, service.Anonymous())
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, issue.StatusReported, timeline[0].ToStatus)
	assert.Equal(t, issue.StatusVerified, timeline[1].ToStatus)
	assert.Equal(t, issue.StatusReported, *timeline[1].FromStatus)
}

func TestMineListsEveryStatus(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	first := e.report(t)
	second := e.report(t)
	_, err := e.svc.Reject(ctx, first.ID, e.moderator, issue.RejectInput{Reason: "Duplicate"})
	require.NoError(t, err)

	page, err := e.svc.Mine(ctx, e.citizen, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, second.ID, page.Items[0].ID)

	page, err = e.svc.Mine(ctx, e.other, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestStatusTable(t *testing.T) {
	assert.True(t, issue.StatusReported.CanTransitionTo(issue.StatusVerified))
	assert.False(t, issue.StatusReported.CanTransitionTo(issue.StatusResolved))
	assert.False(t, issue.StatusRejected.CanTransitionTo(issue.StatusVerified))
	assert.True(t, issue.StatusResolved.Terminal())
	assert.ElementsMatch(t, []issue.Status{issue.StatusReported, issue.StatusUnderReview}, issue.SourcesOf(issue.StatusVerified))

	s, ok := issue.ParseStatus("closed")
	assert.True(t, ok)
	assert.Equal(t, issue.StatusClosed, s)
	_, ok = issue.ParseStatus("archived")
	assert.False(t, ok)
}

func strPtr(s string) *string { return &s }
