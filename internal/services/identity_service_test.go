package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/cache"
	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"github.com/carvajal-autotech/quiz-service/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(token string) (*ExternalIdentity, error) {
	args := m.Called(token)
	identity, _ := args.Get(0).(*ExternalIdentity)
	return identity, args.Error(1)
}

func newIdentityFixture(external ExternalVerifier) (*memStore, IdentityService) {
	store := newMemStore()
	service := NewIdentityService(store, cache.NewMemoryCache(), NewTokenIssuer("test-secret", time.Hour), external, validator.New(), discardLogger())
	return store, service
}

func register(t *testing.T, service IdentityService, email string) *models.User {
	t.Helper()
	user, err := service.Register(context.Background(), &RegisterRequest{Email: email, Password: "correct-horse"})
	require.NoError(t, err)
	return user
}

func TestIdentityService_Register(t *testing.T) {
	_, service := newIdentityFixture(nil)
	ctx := context.Background()

	first := "  Ana "
	user, err := service.Register(ctx, &RegisterRequest{Email: " Ana@Example.com ", Password: "correct-horse", FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)
	require.NotNil(t, user.FirstName)
	assert.Equal(t, "Ana", *user.FirstName)

	_, err = service.Register(ctx, &RegisterRequest{Email: "ana@example.com", Password: "another-pass"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.True(t, IsConflict(err))

	_, err = service.Register(ctx, &RegisterRequest{Email: "not-an-email", Password: "short"})
	assert.True(t, IsValidation(err))
}

func TestIdentityService_Login(t *testing.T) {
	store, service := newIdentityFixture(nil)
	ctx := context.Background()
	user := register(t, service, "ana@example.com")

	session, err := service.Login(ctx, &LoginRequest{Email: "ANA@example.com", Password: "correct-horse", ExpectedRole: models.RoleStudent})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, user.ID, session.User.ID)
	assert.Equal(t, models.RoleStudent, session.Hints.Role)
	assert.True(t, session.ExpiresAt.After(time.Now()))
	assert.NotNil(t, session.User.LastLoginAt)

	tests := []struct {
		name   string
		req    LoginRequest
		setup  func()
		reason string
	}{
		{
			name:   "unknown email",
			req:    LoginRequest{Email: "nobody@example.com", Password: "correct-horse", ExpectedRole: models.RoleStudent},
			reason: AuthInvalidCredentials,
		},
		{
			name:   "wrong password",
			req:    LoginRequest{Email: "ana@example.com", Password: "wrong-horse", ExpectedRole: models.RoleStudent},
			reason: AuthInvalidCredentials,
		},
		{
			name:   "role mismatch",
			req:    LoginRequest{Email: "ana@example.com", Password: "correct-horse", ExpectedRole: models.RoleAdmin},
			reason: AuthRoleMismatch,
		},
		{
			name: "inactive account",
			req:  LoginRequest{Email: "ana@example.com", Password: "correct-horse", ExpectedRole: models.RoleStudent},
			setup: func() {
				store.mu.Lock()
				store.users[user.ID].IsActive = false
				store.mu.Unlock()
			},
			reason: AuthAccountInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			_, err := service.Login(ctx, &tt.req)
			var authErr *AuthError
			require.True(t, errors.As(err, &authErr), "expected AuthError, got %v", err)
			assert.Equal(t, tt.reason, authErr.Reason)
			assert.True(t, IsUnauthorized(err))
		})
	}
}

func TestIdentityService_LoginStoreDown(t *testing.T) {
	store, service := newIdentityFixture(nil)
	register(t, service, "ana@example.com")
	store.setDown(true)

	_, err := service.Login(context.Background(), &LoginRequest{Email: "ana@example.com", Password: "correct-horse", ExpectedRole: models.RoleStudent})
	assert.True(t, IsUnavailable(err))
	assert.False(t, IsUnauthorized(err))
}

func TestIdentityService_AuthenticateAndLogout(t *testing.T) {
	_, service := newIdentityFixture(nil)
	ctx := context.Background()
	user := register(t, service, "ana@example.com")

	session, err := service.Login(ctx, &LoginRequest{Email: "ana@example.com", Password: "correct-horse", ExpectedRole: models.RoleStudent})
	require.NoError(t, err)

	authed, err := service.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)

	require.NoError(t, service.Logout(ctx, session.Token))
	_, err = service.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = service.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = service.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type unreachableCache struct {
	cache.CacheService
}

func (unreachableCache) Exists(context.Context, string) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func TestIdentityService_AuthenticateRejectsWhenRevocationUnknown(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	healthy := cache.NewMemoryCache()
	issuer := NewTokenIssuer("test-secret", time.Hour)
	service := NewIdentityService(store, healthy, issuer, nil, validator.New(), discardLogger())
	register(t, service, "ana@example.com")
	session, err := service.Login(ctx, &LoginRequest{Email: "ana@example.com", Password: "correct-horse", ExpectedRole: models.RoleStudent})
	require.NoError(t, err)
	require.NoError(t, service.Logout(ctx, session.Token))

	degraded := NewIdentityService(store, unreachableCache{healthy}, issuer, nil, validator.New(), discardLogger())
	user, err := degraded.Authenticate(ctx, session.Token)
	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	assert.True(t, IsUnavailable(err))
}

func TestIdentityService_AuthenticateForeignSignature(t *testing.T) {
	_, service := newIdentityFixture(nil)
	user := &models.User{ID: "u-1", Email: "ana@example.com", Role: models.RoleStudent}
	token, _, err := NewTokenIssuer("other-secret", time.Hour).Issue(user)
	require.NoError(t, err)

	_, err = service.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentityService_ExternalProvisioning(t *testing.T) {
	verifier := new(mockVerifier)
	store, service := newIdentityFixture(verifier)
	ctx := context.Background()

	verifier.On("Verify", "casdoor-token").Return(&ExternalIdentity{
		Subject:   "cd-1",
		Email:     "Instructor@Example.com",
		FirstName: "Rosa",
		IsAdmin:   true,
	}, nil)

	user, err := service.Authenticate(ctx, "casdoor-token")
	require.NoError(t, err)
	assert.Equal(t, "instructor@example.com", user.Email)
	assert.Equal(t, models.RoleAdmin, user.Role)

	// A second sight maps to the same user.
	again, err := service.Authenticate(ctx, "casdoor-token")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Len(t, store.users, 1)

	verifier.On("Verify", "banned-token").Return(&ExternalIdentity{Email: "x@example.com", Forbidden: true}, nil)
	_, err = service.Authenticate(ctx, "banned-token")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, AuthAccountInactive, authErr.Reason)

	verifier.AssertExpectations(t)
}

func TestIdentityService_UpdateProfileAndListStudents(t *testing.T) {
	store, service := newIdentityFixture(nil)
	ctx := context.Background()
	user := register(t, service, "ana@example.com")
	admin := store.addUser("admin-1", models.RoleAdmin)

	last := "Pérez"
	updated, err := service.UpdateProfile(ctx, user.ID, &UpdateProfileRequest{LastName: &last})
	require.NoError(t, err)
	require.NotNil(t, updated.LastName)
	assert.Equal(t, "Pérez", *updated.LastName)

	_, err = service.UpdateProfile(ctx, "missing", &UpdateProfileRequest{})
	assert.ErrorIs(t, err, ErrUserNotFound)

	students, total, err := service.ListStudents(ctx, admin, repositories.UserFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, students, 1)
	assert.Equal(t, user.ID, students[0].ID)

	_, _, err = service.ListStudents(ctx, user, repositories.UserFilters{})
	assert.True(t, IsForbidden(err))
}
