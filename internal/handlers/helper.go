package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/gin-gonic/gin"
)

const (
	ContextUserKey   = "user"
	ContextUserIDKey = "user_id"
	ContextTokenKey  = "token"

	defaultPageSize = 20
	maxPageSize     = 100
)

// ParseStringIDParam returns the trimmed path parameter, answering 400 when
// it is empty.
func ParseStringIDParam(c *gin.Context, param string) string {
	idStr := strings.TrimSpace(c.Param(param))
	if idStr == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "ID cannot be empty",
			Code:    CodeValidation,
		})
		return ""
	}
	return idStr
}

// parseIDParam parses a numeric path parameter. Zero means the response
// was already written.
func parseIDParam(c *gin.Context, param string) uint {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		details := "ID must be a positive integer"
		if err != nil {
			details = err.Error()
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: details,
			Code:    CodeValidation,
		})
		return 0
	}
	return uint(id)
}

func parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	value, err := strconv.Atoi(c.Query(param))
	if err != nil {
		return defaultValue
	}
	return value
}

func parseBoolQuery(c *gin.Context, param string) *bool {
	value, err := strconv.ParseBool(c.Query(param))
	if err != nil {
		return nil
	}
	return &value
}

// pagination reads page/size query parameters into limit and offset.
func pagination(c *gin.Context) (page, size, offset int) {
	page = parseIntQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	size = parseIntQuery(c, "size", defaultPageSize)
	if size < 1 || size > maxPageSize {
		size = defaultPageSize
	}
	return page, size, (page - 1) * size
}

// currentUser returns the authenticated user stored by AuthMiddleware.
func currentUser(c *gin.Context) *models.User {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

// requireUser answers 401 when no user is attached to the request.
func requireUser(c *gin.Context) *models.User {
	user := currentUser(c)
	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
			Code:    CodeUnauthorized,
		})
	}
	return user
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
