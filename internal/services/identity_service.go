package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/cache"
	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"github.com/carvajal-autotech/quiz-service/internal/validator"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type identityService struct {
	repo      repositories.Repository
	cache     cache.CacheService
	tokens    *TokenIssuer
	external  ExternalVerifier
	validator *validator.Validator
	logger    *ServiceLogger
	now       func() time.Time
}

// NewIdentityService builds the identity service. external may be nil when
// only locally issued tokens are accepted.
func NewIdentityService(
	repo repositories.Repository,
	cacheService cache.CacheService,
	tokens *TokenIssuer,
	external ExternalVerifier,
	validator *validator.Validator,
	logger *slog.Logger,
) IdentityService {
	return &identityService{
		repo:      repo,
		cache:     cacheService,
		tokens:    tokens,
		external:  external,
		validator: validator,
		logger:    NewServiceLogger(logger, LogConfig{Service: "quiz-service", Component: "identity"}),
		now:       time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *identityService) Register(ctx context.Context, req *RegisterRequest) (user *models.User, err error) {
	op := s.logger.WithOperation(ctx, "register", "")
	defer func() { op.LogResult(actorID(user), "user", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	exists, err := s.repo.User().ExistsByEmail(ctx, nil, email)
	if err != nil {
		return nil, storeError(err, nil, "check email")
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user = &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleStudent,
		FirstName:    trimmedOrNil(req.FirstName),
		LastName:     trimmedOrNil(req.LastName),
		IsActive:     true,
	}
	if err := s.repo.User().Create(ctx, nil, user); err != nil {
		if errors.Is(repositories.Classify(err), repositories.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, storeError(err, nil, "create user")
	}
	return user, nil
}

func (s *identityService) Login(ctx context.Context, req *LoginRequest) (session *Session, err error) {
	op := s.logger.WithOperation(ctx, "login", "")
	defer func() {
		var id string
		if session != nil {
			id = session.User.ID
		}
		op.LogResult(id, "user", err)
	}()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.repo.User().GetByEmail(ctx, nil, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(repositories.Classify(err), repositories.ErrNotFound) {
			return nil, NewAuthError(AuthInvalidCredentials)
		}
		return nil, storeError(err, nil, "load user")
	}

	if user.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, NewAuthError(AuthInvalidCredentials)
	}
	if !user.IsActive {
		return nil, NewAuthError(AuthAccountInactive)
	}
	if user.Role != req.ExpectedRole {
		return nil, NewAuthError(AuthRoleMismatch)
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.repo.User().UpdateLastLogin(ctx, nil, user.ID, now); err != nil {
		s.logger.Slog().Warn("Failed to record last login", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
	}

	return &Session{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
		Hints: SessionHints{
			Role:        user.Role,
			DisplayName: user.DisplayName(),
		},
	}, nil
}

func (s *identityService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	// Fail closed: a logged-out token must not come back during a cache outage.
	revoked, err := s.cache.Exists(ctx, cache.RevokedTokenKey(TokenFingerprint(token)))
	if err != nil {
		s.logger.Slog().Error("Token revocation check failed", "error", err)
		return nil, fmt.Errorf("check token revocation: %w", errors.Join(ErrPersistenceUnavailable, err))
	}
	if revoked {
		return nil, ErrInvalidToken
	}

	claims, localErr := s.tokens.Parse(token)
	if localErr == nil {
		user, err := s.repo.User().GetByID(ctx, nil, claims.UserID)
		if err != nil {
			if errors.Is(repositories.Classify(err), repositories.ErrNotFound) {
				return nil, ErrInvalidToken
			}
			return nil, storeError(err, nil, "load user")
		}
		if !user.IsActive {
			return nil, NewAuthError(AuthAccountInactive)
		}
		return user, nil
	}

	if s.external == nil {
		return nil, localErr
	}
	identity, err := s.external.Verify(token)
	if err != nil {
		return nil, err
	}
	return s.userForExternal(ctx, identity)
}

// userForExternal maps an external identity to an application user by
// email, provisioning one on first sight.
func (s *identityService) userForExternal(ctx context.Context, identity *ExternalIdentity) (*models.User, error) {
	if identity.Forbidden {
		return nil, NewAuthError(AuthAccountInactive)
	}

	email := normalizeEmail(identity.Email)
	user, err := s.repo.User().GetByEmail(ctx, nil, email)
	if err == nil {
		if !user.IsActive {
			return nil, NewAuthError(AuthAccountInactive)
		}
		return user, nil
	}
	if !errors.Is(repositories.Classify(err), repositories.ErrNotFound) {
		return nil, storeError(err, nil, "load user")
	}

	role := models.RoleStudent
	if identity.IsAdmin {
		role = models.RoleAdmin
	}
	user = &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      role,
		FirstName: trimmedOrNil(&identity.FirstName),
		LastName:  trimmedOrNil(&identity.LastName),
		IsActive:  true,
	}
	if err := s.repo.User().Create(ctx, nil, user); err != nil {
		return nil, storeError(err, nil, "provision user")
	}
	s.logger.Slog().Info("Provisioned user from external identity", "user_id", user.ID, "role", role)
	return user, nil
}

func (s *identityService) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}

	ttl := s.tokens.ttl
	if claims, err := s.tokens.Parse(token); err == nil && claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(s.now())
	}
	if ttl <= 0 {
		return nil
	}

	if err := s.cache.Set(ctx, cache.RevokedTokenKey(TokenFingerprint(token)), true, ttl); err != nil {
		return errors.Join(ErrPersistenceUnavailable, err)
	}
	return nil
}

func (s *identityService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.User().GetByID(ctx, nil, userID)
	if err != nil {
		return nil, storeError(err, ErrUserNotFound, "load user")
	}
	return user, nil
}

func (s *identityService) UpdateProfile(ctx context.Context, userID string, req *UpdateProfileRequest) (user *models.User, err error) {
	op := s.logger.WithOperation(ctx, "update_profile", userID)
	defer func() { op.LogResult(userID, "user", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.repo.User().UpdateProfile(ctx, nil, userID, trimmedOrNil(req.FirstName), trimmedOrNil(req.LastName)); err != nil {
		return nil, storeError(err, ErrUserNotFound, "update profile")
	}
	return s.GetUser(ctx, userID)
}

func (s *identityService) ListStudents(ctx context.Context, actor *models.User, filters repositories.UserFilters) ([]*models.User, int64, error) {
	if err := requireAdmin(actor, "student", "", "list"); err != nil {
		return nil, 0, err
	}
	role := models.RoleStudent
	filters.Role = &role

	users, total, err := s.repo.User().List(ctx, nil, filters)
	if err != nil {
		return nil, 0, storeError(err, nil, "list students")
	}
	return users, total, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
