package repo

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is a user's position in the platform.
type Role string

const (
	RoleCitizen             Role = "CITIZEN"
	RoleVerifiedContributor Role = "VERIFIED_CONTRIBUTOR"
	RoleModerator           Role = "MODERATOR"
	RoleCityAdmin           Role = "CITY_ADMIN"
	RoleAuthority           Role = "AUTHORITY"
	RoleSuperAdmin          Role = "SUPER_ADMIN"
)

// ParseRole normalizes and validates a role name.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleCitizen, RoleVerifiedContributor, RoleModerator, RoleCityAdmin, RoleAuthority, RoleSuperAdmin:
		return role, true
	}
	return "", false
}

const DefaultCredibility = 50

// User is a row of the users table.
type User struct {
	ID               uuid.UUID
	Phone            string
	Email            *string
	Name             string
	PasswordHash     string
	Role             Role
	IsVerified       bool
	IsPhoneVerified  bool
	IsActive         bool
	IsSuspended      bool
	CredibilityScore int
	AssignedCityID   *uuid.UUID
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PublicUser is the projection returned to clients. It never carries the hash.
type PublicUser struct {
	ID               uuid.UUID  `json:"id"`
	Phone            string     `json:"phone"`
	Email            *string    `json:"email"`
	Name             string     `json:"name"`
	Role             Role       `json:"role"`
	IsVerified       bool       `json:"isVerified"`
	IsPhoneVerified  bool       `json:"isPhoneVerified"`
	IsActive         bool       `json:"isActive"`
	IsSuspended      bool       `json:"isSuspended"`
	CredibilityScore int        `json:"credibilityScore"`
	AssignedCityID   *uuid.UUID `json:"assignedCityId"`
	LastLoginAt      *time.Time `json:"lastLoginAt"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:               u.ID,
		Phone:            u.Phone,
		Email:            u.Email,
		Name:             u.Name,
		Role:             u.Role,
		IsVerified:       u.IsVerified,
		IsPhoneVerified:  u.IsPhoneVerified,
		IsActive:         u.IsActive,
		IsSuspended:      u.IsSuspended,
		CredibilityScore: u.CredibilityScore,
		AssignedCityID:   u.AssignedCityID,
		LastLoginAt:      u.LastLoginAt,
		CreatedAt:        u.CreatedAt,
	}
}

// InsertUserParams carries the columns set on registration.
type InsertUserParams struct {
	Phone        string
	Email        *string
	Name         string
	PasswordHash string
	Role         Role
	IsVerified   bool
}
