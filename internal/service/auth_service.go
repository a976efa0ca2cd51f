package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/audit"
	"github.com/citywatch/api/internal/auth"
	"github.com/citywatch/api/internal/repo"
	"github.com/citywatch/api/internal/util"
)

var (
	errInvalidCredentials = apperr.Unauthorized("INVALID_CREDENTIALS", "Invalid phone number or password")
	errAccountInactive    = apperr.Forbidden("ACCOUNT_INACTIVE", "Account has been deactivated")
	errAccountSuspended   = apperr.Forbidden("ACCOUNT_SUSPENDED", "Account has been suspended")
)

// UserStore is the persistence the auth service needs.
type UserStore interface {
	GetUserByPhone(ctx context.Context, phone string) (repo.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (repo.User, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
	CreateUser(ctx context.Context, arg repo.InsertUserParams, entry func(repo.User) audit.Entry) (repo.User, error)
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time, entry audit.Entry) error
	RecordAudit(ctx context.Context, entry audit.Entry) error
}

// TokenRevoker tracks logged-out token ids.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthService handles registration, login and session resolution.
type AuthService struct {
	users   UserStore
	jwt     *auth.JWTManager
	revoker TokenRevoker
}

func NewAuthService(users UserStore, jwtMgr *auth.JWTManager, revoker TokenRevoker) *AuthService {
	return &AuthService{users: users, jwt: jwtMgr, revoker: revoker}
}

type RegisterInput struct {
	Name     string  `json:"name" validate:"required,min=2,max=100"`
	Phone    string  `json:"phone" validate:"required,phone"`
	Password string  `json:"password" validate:"required,min=6"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

type LoginInput struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is the token and profile returned on login.
type LoginResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	User      repo.PublicUser `json:"user"`
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (repo.PublicUser, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		in.Email = &email
		if email == "" {
			in.Email = nil
		}
	}
	if err := util.ValidateStruct(in); err != nil {
		return repo.PublicUser{}, err
	}

	exists, err := s.users.PhoneExists(ctx, in.Phone)
	if err != nil {
		return repo.PublicUser{}, fmt.Errorf("register: %w", err)
	}
	if exists {
		return repo.PublicUser{}, phoneTaken()
	}

	hash, err := auth.Hash(in.Password)
	if err != nil {
		return repo.PublicUser{}, fmt.Errorf("register: hash: %w", err)
	}

	user, err := s.users.CreateUser(ctx, repo.InsertUserParams{
		Phone:        in.Phone,
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         repo.RoleCitizen,
	}, func(u repo.User) audit.Entry {
		return audit.NewEntry(ctx, &u.ID, string(u.Role), audit.ActionUserRegister, audit.EntityUser, u.ID.String())
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return repo.PublicUser{}, phoneTaken()
		}
		return repo.PublicUser{}, fmt.Errorf("register: %w", err)
	}

	return user.Public(), nil
}

func phoneTaken() error {
	return apperr.Conflict("PHONE_EXISTS", "Phone number already registered")
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	if err := util.ValidateStruct(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByPhone(ctx, in.Phone)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn().Msg("login: unknown phone")
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	ok, err := auth.Verify(in.Password, user.PasswordHash)
	if err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("login: verify password failed")
		return nil, errInvalidCredentials
	}
	if !ok {
		log.Warn().Str("user_id", user.ID.String()).Msg("login: wrong password")
		return nil, errInvalidCredentials
	}
	if err := checkAccount(user); err != nil {
		return nil, err
	}

	issued, err := s.jwt.GenerateAccessToken(user.ID.String(), string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("login: sign token: %w", err)
	}

	now := util.Now()
	entry := audit.NewEntry(ctx, &user.ID, string(user.Role), audit.ActionUserLogin, audit.EntityUser, user.ID.String())
	if err := s.users.RecordLogin(ctx, user.ID, now, entry); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	user.LastLoginAt = &now

	return &LoginResult{Token: issued.Token, ExpiresAt: issued.ExpiresAt, User: user.Public()}, nil
}

// ResolveSession turns a bearer token into a Principal.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Anonymous(), apperr.Unauthorized("AUTH_REQUIRED", "Authentication required")
	}

	claims, err := s.jwt.ParseAndValidate(token)
	if err != nil {
		return Anonymous(), apperr.Unauthorized("INVALID_TOKEN", "Invalid or expired token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Anonymous(), apperr.Unauthorized("INVALID_TOKEN", "Invalid or expired token")
	}

	if s.revoker != nil && claims.ID != "" {
		revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Anonymous(), fmt.Errorf("session: revocation lookup: %w", err)
		}
		if revoked {
			return Anonymous(), apperr.Unauthorized("INVALID_TOKEN", "Token has been revoked")
		}
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Anonymous(), apperr.Unauthorized("INVALID_TOKEN", "User no longer exists")
		}
		return Anonymous(), fmt.Errorf("session: %w", err)
	}
	if err := checkAccount(user); err != nil {
		return Anonymous(), err
	}

	p := Principal{
		UserID:         user.ID,
		Name:           user.Name,
		Role:           user.Role,
		AssignedCityID: user.AssignedCityID,
		TokenID:        claims.ID,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

func (s *AuthService) Me(ctx context.Context, p Principal) (repo.PublicUser, error) {
	if !p.Authenticated() {
		return repo.PublicUser{}, apperr.Unauthorized("AUTH_REQUIRED", "Authentication required")
	}
	user, err := s.users.GetUserByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.PublicUser{}, apperr.NotFound("User not found")
		}
		return repo.PublicUser{}, err
	}
	return user.Public(), nil
}

// Logout revokes the presented token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, p Principal) error {
	if !p.Authenticated() {
		return apperr.Unauthorized("AUTH_REQUIRED", "Authentication required")
	}
	if s.revoker != nil && p.TokenID != "" {
		if err := s.revoker.Revoke(ctx, p.TokenID, p.ExpiresAt); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
	}
	entry := audit.NewEntry(ctx, p.ActorID(), string(p.Role), audit.ActionUserLogout, audit.EntityUser, p.UserID.String())
	return s.users.RecordAudit(ctx, entry)
}

func checkAccount(u repo.User) error {
	if !u.IsActive {
		return errAccountInactive
	}
	if u.IsSuspended {
		return errAccountSuspended
	}
	return nil
}
