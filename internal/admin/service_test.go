package admin

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/audit"
	"github.com/citywatch/api/internal/repo"
	"github.com/citywatch/api/internal/service"
	"github.com/citywatch/api/internal/taxonomy"
	"github.com/citywatch/api/internal/util"
)

type stubStats struct {
	monthStart time.Time
	from, to   time.Time
	days       []DayCount
}

func (s *stubStats) Overview(ctx context.Context, monthStart time.Time) (Stats, error) {
	s.monthStart = monthStart
	return Stats{TotalUsers: 3, ResolvedThisMonth: 1}, nil
}

func (s *stubStats) DailyCounts(ctx context.Context, from, to time.Time) ([]DayCount, error) {
	s.from, s.to = from, to
	return s.days, nil
}

type stubActivity struct{}

func (stubActivity) ListRecent(ctx context.Context, limit int) ([]audit.Activity, error) {
	return make([]audit.Activity, limit), nil
}

type stubUsers struct {
	users   map[uuid.UUID]repo.User
	entries []audit.Entry
}

func (s *stubUsers) GetUserByID(ctx context.Context, id uuid.UUID) (repo.User, error) {
	u, ok := s.users[id]
	if !ok {
		return repo.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (s *stubUsers) ListRecentUsers(ctx context.Context, limit int) ([]repo.User, error) {
	out := []repo.User{}
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *stubUsers) UpdateSuspension(ctx context.Context, id uuid.UUID, suspended bool, at time.Time, entry audit.Entry) (repo.User, error) {
	u := s.users[id]
	u.IsSuspended = suspended
	s.users[id] = u
	s.entries = append(s.entries, entry)
	return u, nil
}

func (s *stubUsers) UpdateAssignedCity(ctx context.Context, id uuid.UUID, cityID *uuid.UUID, at time.Time, entry audit.Entry) (repo.User, error) {
	u := s.users[id]
	u.AssignedCityID = cityID
	s.users[id] = u
	s.entries = append(s.entries, entry)
	return u, nil
}

type stubCities map[uuid.UUID]taxonomy.City

func (c stubCities) GetCity(ctx context.Context, id uuid.UUID) (taxonomy.City, error) {
	if city, ok := c[id]; ok {
		return city, nil
	}
	return taxonomy.City{}, taxonomy.ErrNotFound
}

func fixClock(t *testing.T, now time.Time) {
	t.Helper()
	prev := util.Now
	util.Now = func() time.Time { return now }
	t.Cleanup(func() { util.Now = prev })
}

var admin = service.Principal{UserID: uuid.New(), Role: repo.RoleSuperAdmin}

func TestTrendsZeroFilled(t *testing.T) {
	fixClock(t, time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC))
	stats := &stubStats{days: []DayCount{
		{Day: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), Reported: 4, Resolved: 1},
		{Day: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), Reported: 2},
	}}
	svc := NewService(stats, stubActivity{}, &stubUsers{}, stubCities{})

	points, err := svc.Trends(context.Background(), admin)
	require.NoError(t, err)
	require.Len(t, points, 7)

	assert.Equal(t, "2026-03-04", points[0].Date)
	assert.Equal(t, "2026-03-10", points[6].Date)
	assert.Equal(t, TrendPoint{Date: "2026-03-05", Reported: 4, Resolved: 1}, points[1])
	assert.Equal(t, TrendPoint{Date: "2026-03-06"}, points[2])
	assert.Equal(t, 2, points[6].Reported)

	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), stats.from)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), stats.to)
}

func TestStatsUsesMonthStart(t *testing.T) {
	fixClock(t, time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC))
	stats := &stubStats{}
	svc := NewService(stats, stubActivity{}, &stubUsers{}, stubCities{})

	got, err := svc.Stats(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalUsers)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), stats.monthStart)

	activity, err := svc.Activity(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, activity, 10)
}

func TestReportsRequireCapability(t *testing.T) {
	svc := NewService(&stubStats{}, stubActivity{}, &stubUsers{}, stubCities{})
	city := uuid.New()

	for _, p := range []service.Principal{
		{UserID: uuid.New(), Role: repo.RoleModerator, AssignedCityID: &city},
		{UserID: uuid.New(), Role: repo.RoleAuthority},
		{UserID: uuid.New(), Role: repo.RoleCitizen},
	} {
		_, err := svc.Stats(context.Background(), p)
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err), string(p.Role))
	}
	_, err := svc.Trends(context.Background(), service.Anonymous())
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestUpdateUser(t *testing.T) {
	moderatorID, superID := uuid.New(), uuid.New()
	cityID := uuid.New()
	users := &stubUsers{users: map[uuid.UUID]repo.User{
		moderatorID: {ID: moderatorID, Role: repo.RoleModerator, IsActive: true},
		superID:     {ID: superID, Role: repo.RoleSuperAdmin, IsActive: true},
	}}
	svc := NewService(&stubStats{}, stubActivity{}, users, stubCities{cityID: {ID: cityID, Name: "Nagpur"}})
	cityAdmin := service.Principal{UserID: uuid.New(), Role: repo.RoleCityAdmin}
	ctx := context.Background()

	suspended := true
	got, err := svc.UpdateUser(ctx, cityAdmin, moderatorID, UpdateUserInput{IsSuspended: &suspended, AssignedCityID: &cityID})
	require.NoError(t, err)
	assert.True(t, got.IsSuspended)
	assert.Equal(t, &cityID, got.AssignedCityID)
	require.Len(t, users.entries, 2)
	assert.Equal(t, audit.ActionUserSuspend, users.entries[0].Action)
	assert.Equal(t, audit.ActionUserAssignCity, users.entries[1].Action)

	got, err = svc.UpdateUser(ctx, cityAdmin, moderatorID, UpdateUserInput{ClearCity: true})
	require.NoError(t, err)
	assert.Nil(t, got.AssignedCityID)

	unknown := uuid.New()
	_, err = svc.AssignJurisdiction(ctx, cityAdmin, moderatorID, &unknown)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	_, err = svc.SuspendUser(ctx, cityAdmin, superID, true)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.SuspendUser(ctx, cityAdmin, uuid.New(), true)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.UpdateUser(ctx, cityAdmin, moderatorID, UpdateUserInput{})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	_, err = svc.SuspendUser(ctx, service.Principal{UserID: superID, Role: repo.RoleSuperAdmin}, superID, true)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}
