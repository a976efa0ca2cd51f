package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/citywatch/api/internal/repo"
)

// Principal is the authenticated caller attached to a request.
// The zero value is the anonymous principal.
type Principal struct {
	UserID         uuid.UUID
	Name           string
	Role           repo.Role
	AssignedCityID *uuid.UUID
	TokenID        string
	ExpiresAt      time.Time
}

func Anonymous() Principal {
	return Principal{}
}

func (p Principal) Authenticated() bool {
	return p.UserID != uuid.Nil
}

// ActorID returns the user id for audit rows, nil when anonymous.
func (p Principal) ActorID() *uuid.UUID {
	if !p.Authenticated() {
		return nil
	}
	id := p.UserID
	return &id
}

func (p Principal) Can(c Capability) bool {
	if !p.Authenticated() {
		return false
	}
	_, ok := capabilityRoles[c][p.Role]
	return ok
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the request principal or Anonymous.
func PrincipalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}
