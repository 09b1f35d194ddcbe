package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/carvajal-autotech/quiz-service/internal/quiz"
	"github.com/carvajal-autotech/quiz-service/internal/services"
	"github.com/carvajal-autotech/quiz-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// QuizHandler serves the student side of a quiz: one live session per
// (student, category), addressed by the category id.
type QuizHandler struct {
	BaseHandler
	quiz        services.QuizService
	publication services.PublicationService
}

func NewQuizHandler(quizService services.QuizService, publication services.PublicationService, logger utils.Logger) *QuizHandler {
	return &QuizHandler{
		BaseHandler: NewBaseHandler(logger),
		quiz:        quizService,
		publication: publication,
	}
}

// quizTarget resolves the student and category of the request. ok is false
// when a response was already written.
func (h *QuizHandler) quizTarget(c *gin.Context) (studentID string, categoryID uint, ok bool) {
	user := requireUser(c)
	if user == nil {
		return "", 0, false
	}
	categoryID = parseIDParam(c, "category_id")
	if categoryID == 0 {
		return "", 0, false
	}
	return user.ID, categoryID, true
}

// MyAssignments lists the dashboard rows of the current student
// @Router /me/assignments [get]
func (h *QuizHandler) MyAssignments(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	summaries, err := h.publication.ListStudentAssignments(c.Request.Context(), user, user.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// @Router /quiz/{category_id}/resume [get]
func (h *QuizHandler) ResumeState(c *gin.Context) {
	studentID, categoryID, ok := h.quizTarget(c)
	if !ok {
		return
	}
	state, err := h.quiz.LoadResumeState(c.Request.Context(), studentID, categoryID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Start begins a quiz, or returns the live session when one is running
// @Router /quiz/{category_id}/start [post]
func (h *QuizHandler) Start(c *gin.Context) {
	studentID, categoryID, ok := h.quizTarget(c)
	if !ok {
		return
	}

	var req services.StartQuizRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "Invalid request payload", err)
			return
		}
	}

	h.LogRequest(c, "Starting quiz", "category_id", categoryID, "resume", req.Resume)
	snap, err := h.quiz.Start(c.Request.Context(), studentID, categoryID, &req)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, snap)
	case errors.Is(err, quiz.ErrAlreadyStarted) && snap != nil:
		c.JSON(http.StatusOK, snap)
	default:
		h.handleServiceError(c, err)
	}
}

// @Router /quiz/{category_id} [get]
func (h *QuizHandler) Snapshot(c *gin.Context) {
	h.snapshotAction(c, h.quiz.Snapshot)
}

// SubmitAnswer records the answer for the current question. A stored
// answer with synced=false is held in memory until a retry succeeds.
// @Router /quiz/{category_id}/answer [post]
func (h *QuizHandler) SubmitAnswer(c *gin.Context) {
	studentID, categoryID, ok := h.quizTarget(c)
	if !ok {
		return
	}

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request payload", err)
		return
	}
	if req.QuestionID == 0 {
		h.badRequest(c, "question_id is required", nil)
		return
	}

	resp, err := h.quiz.SubmitAnswer(c.Request.Context(), studentID, categoryID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Router /quiz/{category_id}/next [post]
func (h *QuizHandler) Next(c *gin.Context) {
	h.snapshotAction(c, h.quiz.Next)
}

// @Router /quiz/{category_id}/previous [post]
func (h *QuizHandler) Previous(c *gin.Context) {
	h.snapshotAction(c, h.quiz.Previous)
}

// @Router /quiz/{category_id}/pause [post]
func (h *QuizHandler) Pause(c *gin.Context) {
	h.snapshotAction(c, h.quiz.Pause)
}

// @Router /quiz/{category_id}/resume [post]
func (h *QuizHandler) Resume(c *gin.Context) {
	h.snapshotAction(c, h.quiz.Resume)
}

// RetrySync re-sends answers and progress that failed to persist
// @Router /quiz/{category_id}/sync [post]
func (h *QuizHandler) RetrySync(c *gin.Context) {
	h.snapshotAction(c, h.quiz.RetrySync)
}

// @Router /quiz/{category_id}/complete [post]
func (h *QuizHandler) Complete(c *gin.Context) {
	studentID, categoryID, ok := h.quizTarget(c)
	if !ok {
		return
	}
	result, err := h.quiz.Complete(c.Request.Context(), studentID, categoryID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Router /quiz/{category_id}/abandon [post]
func (h *QuizHandler) Abandon(c *gin.Context) {
	studentID, categoryID, ok := h.quizTarget(c)
	if !ok {
		return
	}
	if err := h.quiz.Abandon(c.Request.Context(), studentID, categoryID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Router /quiz/{category_id}/results [get]
func (h *QuizHandler) Results(c *gin.Context) {
	studentID, categoryID, ok := h.quizTarget(c)
	if !ok {
		return
	}
	view, err := h.quiz.Results(c.Request.Context(), studentID, categoryID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// @Router /explanations/{category_id} [get]
func (h *QuizHandler) Explanations(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	categoryID := parseIDParam(c, "category_id")
	if categoryID == 0 {
		return
	}
	bundle, err := h.publication.GetExplanations(c.Request.Context(), user, user.ID, categoryID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// @Router /explanations/{category_id}/read [post]
func (h *QuizHandler) MarkExplanationsRead(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	categoryID := parseIDParam(c, "category_id")
	if categoryID == 0 {
		return
	}
	bundle, err := h.publication.MarkAsRead(c.Request.Context(), user, user.ID, categoryID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

type snapshotFunc func(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error)

func (h *QuizHandler) snapshotAction(c *gin.Context, action snapshotFunc) {
	studentID, categoryID, ok := h.quizTarget(c)
	if !ok {
		return
	}
	snap, err := action(c.Request.Context(), studentID, categoryID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
