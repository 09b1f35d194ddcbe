package services

import (
	"errors"
	"fmt"

	apperrors "github.com/carvajal-autotech/quiz-service/internal/errors"
	"github.com/carvajal-autotech/quiz-service/internal/quiz"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("resource conflict")

	// ErrPersistenceUnavailable is the provider outage error; the raw driver
	// error stays wrapped behind it.
	ErrPersistenceUnavailable = repositories.ErrPersistenceUnavailable

	// Identity errors
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrNotStudentUser = errors.New("user is not a student")

	// Catalog errors
	ErrCategoryNotFound        = errors.New("category not found")
	ErrCategoryNotDeletable    = errors.New("category cannot be deleted - has questions")
	ErrCategoryInactive        = errors.New("category is not active")
	ErrQuestionNotFound        = errors.New("question not found")
	ErrQuestionInWrongCategory = errors.New("question does not belong to category")

	// Assignment and quiz errors
	ErrAssignmentNotFound      = errors.New("category is not assigned to student")
	ErrQuizModeDisabled        = errors.New("quiz mode is disabled for this category")
	ErrQuizNotActive           = errors.New("no quiz in progress for this category")
	ErrAttemptAlreadyCompleted = errors.New("quiz already completed for this category")

	// Explanation errors
	ErrExplanationNotFound  = errors.New("no explanations sent for this category")
	ErrExplanationsUnsynced = errors.New("explanations saved locally only, store unavailable")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// Auth failure reasons reported to the login UI.
const (
	AuthInvalidCredentials = "invalid_credentials"
	AuthRoleMismatch       = "role_mismatch"
	AuthAccountInactive    = "account_inactive"
)

type AuthError struct {
	Reason string `json:"reason"`
}

func (e *AuthError) Error() string {
	switch e.Reason {
	case AuthInvalidCredentials:
		return "invalid email or password"
	case AuthRoleMismatch:
		return "account does not have the requested role"
	case AuthAccountInactive:
		return "account is inactive"
	}
	return "authentication failed: " + e.Reason
}

func NewAuthError(reason string) *AuthError {
	return &AuthError{Reason: reason}
}

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID string `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %s - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewPermissionError(userID, resourceID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// storeError classifies a repository error. Not-found becomes notFound
// (or ErrNotFound when nil); outages stay ErrPersistenceUnavailable.
func storeError(err error, notFound error, op string) error {
	if err == nil {
		return nil
	}
	classified := repositories.Classify(err)
	switch {
	case errors.Is(classified, repositories.ErrNotFound):
		if notFound != nil {
			return notFound
		}
		return ErrNotFound
	case errors.Is(classified, repositories.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, classified)
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrAssignmentNotFound) ||
		errors.Is(err, ErrQuizNotActive) ||
		errors.Is(err, ErrExplanationNotFound)
}

// IsUnauthorized checks if error represents an authentication failure
func IsUnauthorized(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidToken)
}

// IsForbidden checks if error represents an authorization failure
func IsForbidden(err error) bool {
	var permErr *PermissionError
	return errors.As(err, &permErr) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrQuizModeDisabled)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) || errors.Is(err, ErrNotStudentUser) || errors.Is(err, quiz.ErrInvalidAnswer) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsConflict checks if error represents a state conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrEmailTaken) ||
		errors.Is(err, ErrCategoryNotDeletable) ||
		errors.Is(err, ErrAttemptAlreadyCompleted) ||
		errors.Is(err, quiz.ErrAlreadyStarted) ||
		errors.Is(err, quiz.ErrNotStarted) ||
		errors.Is(err, quiz.ErrPaused) ||
		errors.Is(err, quiz.ErrNotPaused) ||
		errors.Is(err, quiz.ErrCompleted) ||
		errors.Is(err, quiz.ErrClosed) ||
		errors.Is(err, quiz.ErrNotCurrentQuestion) ||
		errors.Is(err, quiz.ErrNoQuestions)
}

// IsUnavailable reports a persistence outage.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrPersistenceUnavailable) || errors.Is(err, ErrExplanationsUnsynced)
}
