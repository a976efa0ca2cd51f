package service

import (
	"github.com/google/uuid"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/repo"
)

// Capability names a permission granted to a fixed set of roles.
type Capability string

const (
	CapViewAllIssues   Capability = "VIEW_ALL_ISSUES"
	CapModerate        Capability = "MODERATE"
	CapRespondToIssues Capability = "RESPOND_TO_ISSUES"
	CapViewReports     Capability = "VIEW_REPORTS"
	CapManageUsers     Capability = "MANAGE_USERS"
)

var capabilityRoles = map[Capability]map[repo.Role]struct{}{
	CapViewAllIssues:   roleSet(repo.RoleModerator, repo.RoleCityAdmin, repo.RoleAuthority, repo.RoleSuperAdmin),
	CapModerate:        roleSet(repo.RoleModerator, repo.RoleCityAdmin, repo.RoleSuperAdmin),
	CapRespondToIssues: roleSet(repo.RoleAuthority, repo.RoleCityAdmin, repo.RoleSuperAdmin),
	CapViewReports:     roleSet(repo.RoleCityAdmin, repo.RoleSuperAdmin),
	CapManageUsers:     roleSet(repo.RoleCityAdmin, repo.RoleSuperAdmin),
}

func roleSet(roles ...repo.Role) map[repo.Role]struct{} {
	set := make(map[repo.Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// ErrForbidden is the generic capability refusal.
var ErrForbidden = apperr.Forbidden("FORBIDDEN", "Insufficient permissions")

// Require fails with Forbidden, or Unauthorized for anonymous callers.
func Require(p Principal, c Capability) error {
	if !p.Authenticated() {
		return apperr.Unauthorized("AUTH_REQUIRED", "Authentication required")
	}
	if !p.Can(c) {
		return ErrForbidden
	}
	return nil
}

// ModerationScope resolves the city a moderator may act on. A nil city means
// every city. Moderators must hold an assignment; admins are optionally scoped.
func ModerationScope(p Principal) (*uuid.UUID, error) {
	if err := Require(p, CapModerate); err != nil {
		return nil, err
	}
	if p.Role == repo.RoleModerator && p.AssignedCityID == nil {
		return nil, apperr.Forbidden("FORBIDDEN", "Moderator has no assigned jurisdiction")
	}
	return p.AssignedCityID, nil
}

// InScope reports whether cityID falls inside a scope from ModerationScope.
func InScope(scope *uuid.UUID, cityID uuid.UUID) bool {
	return scope == nil || *scope == cityID
}
