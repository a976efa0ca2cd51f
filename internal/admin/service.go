// Package admin aggregates platform statistics and manages staff accounts.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/audit"
	"github.com/citywatch/api/internal/repo"
	"github.com/citywatch/api/internal/service"
	"github.com/citywatch/api/internal/taxonomy"
	"github.com/citywatch/api/internal/util"
)

type StatsSource interface {
	Overview(ctx context.Context, monthStart time.Time) (Stats, error)
	DailyCounts(ctx context.Context, from, to time.Time) ([]DayCount, error)
}

type ActivitySource interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Activity, error)
}

// Users is implemented by repo.Store.
type Users interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (repo.User, error)
	ListRecentUsers(ctx context.Context, limit int) ([]repo.User, error)
	UpdateSuspension(ctx context.Context, id uuid.UUID, suspended bool, at time.Time, entry audit.Entry) (repo.User, error)
	UpdateAssignedCity(ctx context.Context, id uuid.UUID, cityID *uuid.UUID, at time.Time, entry audit.Entry) (repo.User, error)
}

type CityLookup interface {
	GetCity(ctx context.Context, id uuid.UUID) (taxonomy.City, error)
}

type Service struct {
	stats    StatsSource
	activity ActivitySource
	users    Users
	cities   CityLookup
}

func NewService(stats StatsSource, activity ActivitySource, users Users, cities CityLookup) *Service {
	return &Service{stats: stats, activity: activity, users: users, cities: cities}
}

func (s *Service) Stats(ctx context.Context, p service.Principal) (Stats, error) {
	if err := service.Require(p, service.CapViewReports); err != nil {
		return Stats{}, err
	}
	return s.stats.Overview(ctx, util.StartOfMonth(util.Now()))
}

func (s *Service) Activity(ctx context.Context, p service.Principal) ([]audit.Activity, error) {
	if err := service.Require(p, service.CapViewReports); err != nil {
		return nil, err
	}
	return s.activity.ListRecent(ctx, activityLimit)
}

// Trends returns the last seven UTC days ending today, zero-filled and ascending.
func (s *Service) Trends(ctx context.Context, p service.Principal) ([]TrendPoint, error) {
	if err := service.Require(p, service.CapViewReports); err != nil {
		return nil, err
	}

	today := util.StartOfDay(util.Now())
	start := today.AddDate(0, 0, -(trendDays - 1))
	rows, err := s.stats.DailyCounts(ctx, start, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("trends: %w", err)
	}

	byDay := make(map[string]DayCount, len(rows))
	for _, r := range rows {
		byDay[r.Day.UTC().Format(dayLayout)] = r
	}

	points := make([]TrendPoint, 0, trendDays)
	for i := 0; i < trendDays; i++ {
		day := start.AddDate(0, 0, i).Format(dayLayout)
		row := byDay[day]
		points = append(points, TrendPoint{Date: day, Reported: row.Reported, Resolved: row.Resolved})
	}
	return points, nil
}

func (s *Service) Users(ctx context.Context, p service.Principal) ([]repo.PublicUser, error) {
	if err := service.Require(p, service.CapViewReports); err != nil {
		return nil, err
	}
	users, err := s.users.ListRecentUsers(ctx, usersLimit)
	if err != nil {
		return nil, err
	}
	out := make([]repo.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// UpdateUser applies a suspension toggle and/or a jurisdiction change.
func (s *Service) UpdateUser(ctx context.Context, p service.Principal, id uuid.UUID, in UpdateUserInput) (repo.PublicUser, error) {
	if in.IsSuspended == nil && in.AssignedCityID == nil && !in.ClearCity {
		return repo.PublicUser{}, apperr.BadRequest("no fields to update")
	}
	var (
		user repo.PublicUser
		err  error
	)
	if in.IsSuspended != nil {
		if user, err = s.SuspendUser(ctx, p, id, *in.IsSuspended); err != nil {
			return repo.PublicUser{}, err
		}
	}
	if in.AssignedCityID != nil || in.ClearCity {
		city := in.AssignedCityID
		if in.ClearCity {
			city = nil
		}
		if user, err = s.AssignJurisdiction(ctx, p, id, city); err != nil {
			return repo.PublicUser{}, err
		}
	}
	return user, nil
}

func (s *Service) SuspendUser(ctx context.Context, p service.Principal, id uuid.UUID, suspended bool) (repo.PublicUser, error) {
	if _, err := s.manageable(ctx, p, id); err != nil {
		return repo.PublicUser{}, err
	}
	if id == p.UserID {
		return repo.PublicUser{}, apperr.BadRequest("you cannot suspend your own account")
	}

	entry := audit.NewEntry(ctx, p.ActorID(), string(p.Role), audit.ActionUserSuspend, audit.EntityUser, id.String()).
		WithDetail("suspended", suspended)
	user, err := s.users.UpdateSuspension(ctx, id, suspended, util.Now(), entry)
	if err != nil {
		return repo.PublicUser{}, mapUserErr(err)
	}
	return user.Public(), nil
}

// AssignJurisdiction sets or clears the city a staff member acts on.
func (s *Service) AssignJurisdiction(ctx context.Context, p service.Principal, id uuid.UUID, cityID *uuid.UUID) (repo.PublicUser, error) {
	target, err := s.manageable(ctx, p, id)
	if err != nil {
		return repo.PublicUser{}, err
	}
	switch target.Role {
	case repo.RoleModerator, repo.RoleCityAdmin, repo.RoleAuthority:
	default:
		return repo.PublicUser{}, apperr.BadRequest("only moderators, city admins and authorities have a jurisdiction")
	}
	if cityID != nil {
		if _, err := s.cities.GetCity(ctx, *cityID); err != nil {
			if errors.Is(err, taxonomy.ErrNotFound) {
				return repo.PublicUser{}, apperr.BadRequest("city not found")
			}
			return repo.PublicUser{}, err
		}
	}

	entry := audit.NewEntry(ctx, p.ActorID(), string(p.Role), audit.ActionUserAssignCity, audit.EntityUser, id.String())
	if cityID != nil {
		entry = entry.WithDetail("cityId", cityID.String())
	}
	user, err := s.users.UpdateAssignedCity(ctx, id, cityID, util.Now(), entry)
	if err != nil {
		return repo.PublicUser{}, mapUserErr(err)
	}
	return user.Public(), nil
}

func (s *Service) manageable(ctx context.Context, p service.Principal, id uuid.UUID) (repo.User, error) {
	if err := service.Require(p, service.CapManageUsers); err != nil {
		return repo.User{}, err
	}
	target, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return repo.User{}, mapUserErr(err)
	}
	if target.Role == repo.RoleSuperAdmin && p.Role != repo.RoleSuperAdmin {
		return repo.User{}, service.ErrForbidden
	}
	return target, nil
}

func mapUserErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound("User not found")
	}
	return err
}
