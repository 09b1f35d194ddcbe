package handlers

import (
	"errors"
	"net/http"

	apperrors "github.com/carvajal-autotech/quiz-service/internal/errors"
	"github.com/carvajal-autotech/quiz-service/internal/services"
	"github.com/carvajal-autotech/quiz-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse wraps paginated lists.
type ListResponse struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
}

// Error codes returned in ErrorResponse.Code.
const (
	CodeValidation   = "validation_failed"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeUnavailable  = "persistence_unavailable"
	CodeInternal     = "internal_error"
)

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging and error mapping for all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// log returns the request-scoped logger set by utils.ContextLogger.
func (h *BaseHandler) log(c *gin.Context) utils.Logger {
	logger := utils.GetLoggerFromContext(c, h.logger)
	if userID := c.GetString(ContextUserIDKey); userID != "" {
		logger = logger.With("user_id", userID)
	}
	return logger
}

// LogRequest logs incoming HTTP requests with context information
func (h *BaseHandler) LogRequest(c *gin.Context, message string, fields ...interface{}) {
	h.log(c).Info(message, fields...)
}

// LogError logs error details with context information
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, fields ...interface{}) {
	h.log(c).LogError(err, message, fields...)
}

func (h *BaseHandler) LogWarn(c *gin.Context, message string, fields ...interface{}) {
	h.log(c).Warn(message, fields...)
}

// RespondWithError sends a consistent error response and logs it
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, code, message string, err error, details ...interface{}) {
	resp := ErrorResponse{Message: message, Code: code}
	if len(details) > 0 {
		resp.Details = details[0]
	}

	if statusCode >= http.StatusInternalServerError {
		h.LogError(c, err, message, "status_code", statusCode)
	} else if err != nil {
		h.LogWarn(c, message, "status_code", statusCode, "error", err)
	}

	c.AbortWithStatusJSON(statusCode, resp)
}

func (h *BaseHandler) RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, SuccessResponse{Message: message, Data: data})
}

// badRequest answers a malformed payload or parameter.
func (h *BaseHandler) badRequest(c *gin.Context, message string, err error) {
	var details interface{}
	if err != nil {
		details = err.Error()
	}
	h.RespondWithError(c, http.StatusBadRequest, CodeValidation, message, nil, details)
}

// handleServiceError maps the service error taxonomy onto HTTP statuses.
// Raw provider errors are never echoed to the client.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var authErr *services.AuthError
	if errors.As(err, &authErr) {
		h.RespondWithError(c, http.StatusUnauthorized, CodeUnauthorized, authErr.Error(), err,
			gin.H{"reason": authErr.Reason})
		return
	}

	var permErr *services.PermissionError
	if errors.As(err, &permErr) {
		h.RespondWithError(c, http.StatusForbidden, CodeForbidden, "Access denied", err, gin.H{
			"resource": permErr.Resource,
			"action":   permErr.Action,
			"reason":   permErr.Reason,
		})
		return
	}

	var validationErrs apperrors.ValidationErrors
	if errors.As(err, &validationErrs) {
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "Validation failed", err, validationErrs)
		return
	}

	switch {
	case services.IsUnauthorized(err):
		h.RespondWithError(c, http.StatusUnauthorized, CodeUnauthorized, err.Error(), err)
	case services.IsForbidden(err):
		h.RespondWithError(c, http.StatusForbidden, CodeForbidden, err.Error(), err)
	case services.IsValidation(err):
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, err.Error(), err)
	case services.IsNotFound(err):
		h.RespondWithError(c, http.StatusNotFound, CodeNotFound, notFoundMessage(err), err)
	case services.IsConflict(err):
		h.RespondWithError(c, http.StatusConflict, CodeConflict, conflictMessage(err), err)
	case services.IsUnavailable(err):
		h.RespondWithError(c, http.StatusServiceUnavailable, CodeUnavailable,
			"Storage is temporarily unavailable, please retry", err)
	default:
		h.RespondWithError(c, http.StatusInternalServerError, CodeInternal, "Internal server error", err)
	}
}

// notFoundMessage keeps sentinel texts and hides wrapped context.
func notFoundMessage(err error) string {
	for _, target := range []error{
		services.ErrUserNotFound,
		services.ErrCategoryNotFound,
		services.ErrQuestionNotFound,
		services.ErrAssignmentNotFound,
		services.ErrQuizNotActive,
		services.ErrExplanationNotFound,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return services.ErrNotFound.Error()
}

func conflictMessage(err error) string {
	if errors.Is(err, services.ErrConflict) {
		return services.ErrConflict.Error()
	}
	return err.Error()
}
