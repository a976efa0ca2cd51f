package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/audit"
	"github.com/citywatch/api/internal/auth"
	"github.com/citywatch/api/internal/repo"
)

type stubUserStore struct {
	users  map[uuid.UUID]repo.User
	audits []audit.Entry
}

func newStubUserStore() *stubUserStore {
	return &stubUserStore{users: map[uuid.UUID]repo.User{}}
}

func (s *stubUserStore) GetUserByPhone(ctx context.Context, phone string) (repo.User, error) {
	for _, u := range s.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	return repo.User{}, repo.ErrNotFound
}

func (s *stubUserStore) GetUserByID(ctx context.Context, id uuid.UUID) (repo.User, error) {
	u, ok := s.users[id]
	if !ok {
		return repo.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (s *stubUserStore) PhoneExists(ctx context.Context, phone string) (bool, error) {
	_, err := s.GetUserByPhone(ctx, phone)
	return err == nil, nil
}

func (s *stubUserStore) CreateUser(ctx context.Context, arg repo.InsertUserParams, entry func(repo.User) audit.Entry) (repo.User, error) {
	u := repo.User{
		ID:               uuid.New(),
		Phone:            arg.Phone,
		Email:            arg.Email,
		Name:             arg.Name,
		PasswordHash:     arg.PasswordHash,
		Role:             arg.Role,
		IsActive:         true,
		CredibilityScore: repo.DefaultCredibility,
		CreatedAt:        time.Now(),
	}
	s.users[u.ID] = u
	s.audits = append(s.audits, entry(u))
	return u, nil
}

func (s *stubUserStore) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time, entry audit.Entry) error {
	u := s.users[id]
	u.LastLoginAt = &at
	s.users[id] = u
	s.audits = append(s.audits, entry)
	return nil
}

func (s *stubUserStore) RecordAudit(ctx context.Context, entry audit.Entry) error {
	s.audits = append(s.audits, entry)
	return nil
}

type stubRevoker struct {
	revoked map[string]time.Time
}

func (r *stubRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	r.revoked[tokenID] = until
	return nil
}

func (r *stubRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, ok := r.revoked[tokenID]
	return ok, nil
}

func newTestAuthService() (*AuthService, *stubUserStore, *stubRevoker) {
	store := newStubUserStore()
	revoker := &stubRevoker{revoked: map[string]time.Time{}}
	jwtMgr := auth.NewJWTManager("0123456789abcdef0123456789abcdef", time.Hour)
	return NewAuthService(store, jwtMgr, revoker), store, revoker
}

func TestRegisterAndLogin(t *testing.T) {
	svc, store, _ := newTestAuthService()
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Name: "Asha Rao", Phone: "9876543210", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, repo.RoleCitizen, user.Role)
	assert.Equal(t, repo.DefaultCredibility, user.CredibilityScore)
	assert.NotEqual(t, "secret1", store.users[user.ID].PasswordHash)

	res, err := svc.Login(ctx, LoginInput{Phone: "9876543210", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.NotNil(t, res.User.LastLoginAt)

	require.Len(t, store.audits, 2)
	assert.Equal(t, audit.ActionUserRegister, store.audits[0].Action)
	assert.Equal(t, audit.ActionUserLogin, store.audits[1].Action)

	p, err := svc.ResolveSession(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, p.UserID)
	assert.Equal(t, repo.RoleCitizen, p.Role)
}

func TestRegisterValidationAndDuplicates(t *testing.T) {
	svc, _, _ := newTestAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "A", Phone: "9876543210", Password: "secret1"})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	_, err = svc.Register(ctx, RegisterInput{Name: "Asha", Phone: "1234567890", Password: "secret1"})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	_, err = svc.Register(ctx, RegisterInput{Name: "Asha", Phone: "9876543210", Password: "123"})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	_, err = svc.Register(ctx, RegisterInput{Name: "Asha", Phone: "9876543210", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "Other", Phone: "9876543210", Password: "secret2"})
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, appErr.Kind)
	assert.Equal(t, "PHONE_EXISTS", appErr.Code)
}

func TestLoginFailures(t *testing.T) {
	svc, store, _ := newTestAuthService()
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Name: "Asha", Phone: "9876543210", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Phone: "9000000000", Password: "secret1"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = svc.Login(ctx, LoginInput{Phone: "9876543210", Password: "nope"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	u := store.users[user.ID]
	u.IsSuspended = true
	store.users[user.ID] = u

	_, err = svc.Login(ctx, LoginInput{Phone: "9876543210", Password: "secret1"})
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "ACCOUNT_SUSPENDED", appErr.Code)

	u.IsSuspended = false
	u.IsActive = false
	store.users[user.ID] = u

	_, err = svc.Login(ctx, LoginInput{Phone: "9876543210", Password: "secret1"})
	appErr, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "ACCOUNT_INACTIVE", appErr.Code)
}

func TestResolveSessionFailures(t *testing.T) {
	svc, store, _ := newTestAuthService()
	ctx := context.Background()

	_, err := svc.ResolveSession(ctx, "")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = svc.ResolveSession(ctx, "garbage")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = svc.Register(ctx, RegisterInput{Name: "Asha", Phone: "9876543210", Password: "secret1"})
	require.NoError(t, err)
	res, err := svc.Login(ctx, LoginInput{Phone: "9876543210", Password: "secret1"})
	require.NoError(t, err)

	u := store.users[res.User.ID]
	u.IsSuspended = true
	store.users[u.ID] = u
	_, err = svc.ResolveSession(ctx, res.Token)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	delete(store.users, u.ID)
	_, err = svc.ResolveSession(ctx, res.Token)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, store, revoker := newTestAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "Asha", Phone: "9876543210", Password: "secret1"})
	require.NoError(t, err)
	res, err := svc.Login(ctx, LoginInput{Phone: "9876543210", Password: "secret1"})
	require.NoError(t, err)

	p, err := svc.ResolveSession(ctx, res.Token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, p))
	assert.Contains(t, revoker.revoked, p.TokenID)
	assert.Equal(t, audit.ActionUserLogout, store.audits[len(store.audits)-1].Action)

	_, err = svc.ResolveSession(ctx, res.Token)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}
