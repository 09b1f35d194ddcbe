package handlers

import (
	"net/http"

	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"github.com/carvajal-autotech/quiz-service/internal/services"
	"github.com/carvajal-autotech/quiz-service/internal/utils"
	"github.com/gin-gonic/gin"
)

const maxImageUploadBytes = 10 << 20

type CatalogHandler struct {
	BaseHandler
	catalog services.CatalogService
}

func NewCatalogHandler(catalog services.CatalogService, logger utils.Logger) *CatalogHandler {
	return &CatalogHandler{
		BaseHandler: NewBaseHandler(logger),
		catalog:     catalog,
	}
}

// ===== CATEGORIES =====

// ListCategories lists categories visible to the caller
// @Router /categories [get]
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}

	page, size, offset := pagination(c)
	filters := repositories.CategoryFilters{
		IsActive: parseBoolQuery(c, "is_active"),
		Limit:    size,
		Offset:   offset,
	}

	categories, total, err := h.catalog.ListCategories(c.Request.Context(), user, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: categories, Total: total, Page: page, Size: size})
}

// @Router /categories/{id} [get]
func (h *CatalogHandler) GetCategory(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	category, err := h.catalog.GetCategory(c.Request.Context(), user, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// @Router /admin/categories [post]
func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	var req services.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request payload", err)
		return
	}

	category, err := h.catalog.CreateCategory(c.Request.Context(), user, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

// @Router /admin/categories/{id} [put]
func (h *CatalogHandler) UpdateCategory(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req services.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request payload", err)
		return
	}

	category, err := h.catalog.UpdateCategory(c.Request.Context(), user, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// @Router /admin/categories/{id} [delete]
func (h *CatalogHandler) DeleteCategory(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	if err := h.catalog.DeleteCategory(c.Request.Context(), user, id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ===== QUESTIONS =====

// ListQuestions lists the questions of a category ordered by id
// @Router /admin/categories/{id}/questions [get]
func (h *CatalogHandler) ListQuestions(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	categoryID := parseIDParam(c, "id")
	if categoryID == 0 {
		return
	}

	questions, err := h.catalog.ListQuestions(c.Request.Context(), user, categoryID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}

// @Router /admin/questions/{id} [get]
func (h *CatalogHandler) GetQuestion(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	question, err := h.catalog.GetQuestion(c.Request.Context(), user, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

// @Router /admin/questions [post]
func (h *CatalogHandler) CreateQuestion(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	var req services.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request payload", err)
		return
	}

	h.LogRequest(c, "Creating question", "category_id", req.CategoryID, "type", req.Type)
	question, err := h.catalog.CreateQuestion(c.Request.Context(), user, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

// @Router /admin/questions/{id} [put]
func (h *CatalogHandler) UpdateQuestion(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req services.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request payload", err)
		return
	}

	question, err := h.catalog.UpdateQuestion(c.Request.Context(), user, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

// @Router /admin/questions/{id} [delete]
func (h *CatalogHandler) DeleteQuestion(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	if err := h.catalog.DeleteQuestion(c.Request.Context(), user, id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadQuestionImage attaches an image sent as multipart field "image"
// @Router /admin/questions/{id}/image [post]
func (h *CatalogHandler) UploadQuestionImage(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageUploadBytes)
	header, err := c.FormFile("image")
	if err != nil {
		h.badRequest(c, "Image file is required", err)
		return
	}
	file, err := header.Open()
	if err != nil {
		h.badRequest(c, "Image file cannot be read", err)
		return
	}
	defer file.Close()

	question, err := h.catalog.UploadQuestionImage(c.Request.Context(), user, id, file)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}
