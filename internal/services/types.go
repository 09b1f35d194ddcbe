package services

import (
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/quiz"
)

// ===== IDENTITY =====

type RegisterRequest struct {
	Email     string  `json:"email" validate:"required,email,max=255"`
	Password  string  `json:"password" validate:"required,min=8,max=72"`
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email        string          `json:"email" validate:"required,email"`
	Password     string          `json:"password" validate:"required"`
	ExpectedRole models.UserRole `json:"expected_role" validate:"required,user_role"`
}

type UpdateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
}

// SessionHints is the minimal state a client keeps between page loads.
type SessionHints struct {
	Role        models.UserRole `json:"role"`
	DisplayName string          `json:"display_name"`
}

type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
	Hints     SessionHints `json:"hints"`
}

// ===== CATALOG =====

type CategoryRequest struct {
	Name        string  `json:"name" validate:"required,not_blank,max=150"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Color       string  `json:"color" validate:"omitempty,hexcolor"`
	Icon        *string `json:"icon" validate:"omitempty,max=100"`
	IsActive    *bool   `json:"is_active"`
}

type QuestionRequest struct {
	CategoryID    uint                `json:"category_id" validate:"required"`
	Type          models.QuestionType `json:"type" validate:"required,question_type"`
	Question      string              `json:"question" validate:"required,not_blank"`
	Options       []string            `json:"options"`
	CorrectAnswer string              `json:"correct_answer"`
	Explanation   *string             `json:"explanation"`
	TimeLimit     *int                `json:"time_limit" validate:"omitempty,time_limit"`
}

// ===== ASSIGNMENTS & PUBLICATION =====

type SendExplanationsRequest struct {
	CategoryName string                    `json:"category_name" validate:"omitempty,max=150"`
	Entries      []models.ExplanationEntry `json:"entries" validate:"dive"`
}

type PublishedRequest struct {
	Published bool `json:"published"`
}

// AssignmentSummary is one row of the student dashboard.
type AssignmentSummary struct {
	CategoryID        uint                      `json:"category_id"`
	CategoryName      string                    `json:"category_name"`
	CategoryColor     string                    `json:"category_color"`
	Mode              bool                      `json:"mode"`
	Published         bool                      `json:"published"`
	QuizProgress      *int                      `json:"quiz_progress"`
	Completed         bool                      `json:"completed"`
	AnsweredCount     int                       `json:"answered_count"`
	TotalQuestions    int                       `json:"total_questions"`
	ExplanationStatus *models.ExplanationStatus `json:"explanation_status,omitempty"`
}

// ===== QUIZ =====

type StartQuizRequest struct {
	// Resume continues at the stored progress; false discards it.
	Resume bool `json:"resume"`
}

type SubmitAnswerRequest struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	Answer     string `json:"answer"`
}

// ResumeState is what the student is offered before starting.
type ResumeState struct {
	CategoryID     uint `json:"category_id"`
	CanResume      bool `json:"can_resume"`
	QuizProgress   *int `json:"quiz_progress"`
	TotalQuestions int  `json:"total_questions"`
	Completed      bool `json:"completed"`
	Mode           bool `json:"mode"`
}

type AnswerResponse struct {
	Answer   *models.StudentAnswer `json:"answer"`
	Recorded bool                  `json:"recorded"`
	Synced   bool                  `json:"synced"`
	Snapshot quiz.Snapshot         `json:"snapshot"`
}

// QuestionResult is one reviewed question in study mode.
type QuestionResult struct {
	QuestionID        uint                `json:"question_id"`
	Type              models.QuestionType `json:"type"`
	Question          string              `json:"question"`
	Options           []quiz.OptionView   `json:"options"`
	ImageURL          *string             `json:"image_url,omitempty"`
	Answer            *string             `json:"answer"`
	AnswerText        string              `json:"answer_text,omitempty"`
	IsCorrect         *bool               `json:"is_correct"`
	TimedOut          bool                `json:"timed_out"`
	CorrectAnswer     string              `json:"correct_answer"`
	CorrectAnswerText string              `json:"correct_answer_text,omitempty"`
	Explanation       *string             `json:"explanation,omitempty"`
	TimeSpent         *int                `json:"time_spent,omitempty"`
}

// ResultsView is the post-completion view. Questions is only filled in
// study mode; per-question explanations only when published.
type ResultsView struct {
	CategoryID   uint                       `json:"category_id"`
	CategoryName string                     `json:"category_name"`
	Mode         bool                       `json:"mode"`
	Published    bool                       `json:"published"`
	Completed    bool                       `json:"completed"`
	Stats        models.QuizAttemptStats    `json:"stats"`
	Questions    []QuestionResult           `json:"questions,omitempty"`
	Explanation  *models.StudentExplanation `json:"explanation,omitempty"`
}
