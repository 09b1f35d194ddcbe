package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"github.com/carvajal-autotech/quiz-service/internal/services"
	"github.com/carvajal-autotech/quiz-service/internal/utils"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminHandler serves student management, the publication workflow and
// reporting.
type AdminHandler struct {
	BaseHandler
	identity    services.IdentityService
	publication services.PublicationService
	quiz        services.QuizService
	overview    services.OverviewService
	export      services.ExportService
}

func NewAdminHandler(
	identity services.IdentityService,
	publication services.PublicationService,
	quizService services.QuizService,
	overview services.OverviewService,
	export services.ExportService,
	logger utils.Logger,
) *AdminHandler {
	return &AdminHandler{
		BaseHandler: NewBaseHandler(logger),
		identity:    identity,
		publication: publication,
		quiz:        quizService,
		overview:    overview,
		export:      export,
	}
}

// pairTarget resolves (admin, student, category) from the path.
func (h *AdminHandler) pairTarget(c *gin.Context) (actor *models.User, studentID string, categoryID uint, ok bool) {
	actor = requireUser(c)
	if actor == nil {
		return nil, "", 0, false
	}
	studentID = ParseStringIDParam(c, "id")
	if studentID == "" {
		return nil, "", 0, false
	}
	categoryID = parseIDParam(c, "category_id")
	if categoryID == 0 {
		return nil, "", 0, false
	}
	return actor, studentID, categoryID, true
}

// ===== STUDENTS =====

// @Router /admin/students [get]
func (h *AdminHandler) ListStudents(c *gin.Context) {
	actor := requireUser(c)
	if actor == nil {
		return
	}

	page, size, offset := pagination(c)
	filters := repositories.UserFilters{
		IsActive: parseBoolQuery(c, "is_active"),
		Search:   c.Query("search"),
		Limit:    size,
		Offset:   offset,
	}

	students, total, err := h.identity.ListStudents(c.Request.Context(), actor, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: students, Total: total, Page: page, Size: size})
}

// @Router /admin/students/{id}/categories [get]
func (h *AdminHandler) StudentAssignments(c *gin.Context) {
	actor := requireUser(c)
	if actor == nil {
		return
	}
	studentID := ParseStringIDParam(c, "id")
	if studentID == "" {
		return
	}

	summaries, err := h.publication.ListStudentAssignments(c.Request.Context(), actor, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// @Router /admin/students/{id}/overview [get]
func (h *AdminHandler) StudentOverview(c *gin.Context) {
	actor := requireUser(c)
	if actor == nil {
		return
	}
	studentID := ParseStringIDParam(c, "id")
	if studentID == "" {
		return
	}

	overview, err := h.overview.StudentOverview(c.Request.Context(), actor, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// ExportStudentResults downloads the results workbook of a student
// @Router /admin/students/{id}/export [get]
func (h *AdminHandler) ExportStudentResults(c *gin.Context) {
	actor := requireUser(c)
	if actor == nil {
		return
	}
	studentID := ParseStringIDParam(c, "id")
	if studentID == "" {
		return
	}

	var buf bytes.Buffer
	if err := h.export.ExportStudentResults(c.Request.Context(), actor, studentID, &buf); err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("results_%s_%s.xlsx", studentID, time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ===== ASSIGNMENTS =====

// @Router /admin/students/{id}/categories/{category_id} [post]
func (h *AdminHandler) Assign(c *gin.Context) {
	actor, studentID, categoryID, ok := h.pairTarget(c)
	if !ok {
		return
	}
	assignment, err := h.publication.Assign(c.Request.Context(), actor, studentID, categoryID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, assignment)
}

// @Router /admin/students/{id}/categories/{category_id} [delete]
func (h *AdminHandler) Unassign(c *gin.Context) {
	actor, studentID, categoryID, ok := h.pairTarget(c)
	if !ok {
		return
	}
	if err := h.publication.Unassign(c.Request.Context(), actor, studentID, categoryID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleMode flips the pair between quiz and study mode
// @Router /admin/students/{id}/categories/{category_id}/mode [post]
func (h *AdminHandler) ToggleMode(c *gin.Context) {
	actor, studentID, categoryID, ok := h.pairTarget(c)
	if !ok {
		return
	}
	h.LogRequest(c, "Toggling quiz mode", "student_id", studentID, "category_id", categoryID)
	assignment, err := h.publication.ToggleMode(c.Request.Context(), actor, studentID, categoryID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

// @Router /admin/students/{id}/categories/{category_id}/published [post]
func (h *AdminHandler) SetPublished(c *gin.Context) {
	actor, studentID, categoryID, ok := h.pairTarget(c)
	if !ok {
		return
	}
	var req services.PublishedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request payload", err)
		return
	}

	assignment, err := h.publication.TogglePublished(c.Request.Context(), actor, studentID, categoryID, req.Published)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

// SendExplanations stores an explanation bundle and switches the pair to
// study mode. When the store is down the bundle is kept for a later retry
// and the request answers 503.
// @Router /admin/students/{id}/categories/{category_id}/explanations [post]
func (h *AdminHandler) SendExplanations(c *gin.Context) {
	actor, studentID, categoryID, ok := h.pairTarget(c)
	if !ok {
		return
	}
	var req services.SendExplanationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request payload", err)
		return
	}

	bundle, err := h.publication.SendExplanations(c.Request.Context(), actor, studentID, categoryID, &req)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, bundle)
	case errors.Is(err, services.ErrExplanationsUnsynced):
		h.RespondWithError(c, http.StatusServiceUnavailable, CodeUnavailable, err.Error(), err,
			gin.H{"pending": true, "student_id": studentID, "category_id": categoryID})
	default:
		h.handleServiceError(c, err)
	}
}

// @Router /admin/students/{id}/categories/{category_id}/explanations [get]
func (h *AdminHandler) GetExplanations(c *gin.Context) {
	actor, studentID, categoryID, ok := h.pairTarget(c)
	if !ok {
		return
	}
	bundle, err := h.publication.GetExplanations(c.Request.Context(), actor, studentID, categoryID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// ResetAttempt clears the answers of the pair and starts a new cycle
// @Router /admin/students/{id}/categories/{category_id}/reset [post]
func (h *AdminHandler) ResetAttempt(c *gin.Context) {
	actor, studentID, categoryID, ok := h.pairTarget(c)
	if !ok {
		return
	}
	if err := h.publication.ResetAttempt(c.Request.Context(), actor, studentID, categoryID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StudentResults shows the stored results of a pair
// @Router /admin/students/{id}/categories/{category_id}/results [get]
func (h *AdminHandler) StudentResults(c *gin.Context) {
	_, studentID, categoryID, ok := h.pairTarget(c)
	if !ok {
		return
	}
	stats, err := h.quiz.AttemptStats(c.Request.Context(), studentID, categoryID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
