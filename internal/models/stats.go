package models

import "time"

// QuizAttemptStats is derived from the StudentAnswer rows of one
// (student, category) pair. It is not persisted.
type QuizAttemptStats struct {
	TotalQuestions   int       `json:"total_questions"`
	CorrectAnswers   int       `json:"correct_answers"`
	IncorrectAnswers int       `json:"incorrect_answers"`
	PendingReview    int       `json:"pending_review"`
	Unanswered       int       `json:"unanswered"`
	TimedOut         int       `json:"timed_out"`
	AccuracyPercent  int       `json:"accuracy_percent"`
	TotalTimeMinutes int       `json:"total_time_minutes"`
	CompletedAt      time.Time `json:"completed_at"`
}

// StudentOverview is the admin-side summary of one student's assignments.
type StudentOverview struct {
	Student     *User                `json:"student"`
	Assignments []AssignmentOverview `json:"assignments"`
	RefreshedAt time.Time            `json:"refreshed_at"`
}

type AssignmentOverview struct {
	CategoryID        uint               `json:"category_id"`
	CategoryName      string             `json:"category_name"`
	Mode              bool               `json:"mode"`
	Published         bool               `json:"published"`
	QuizProgress      *int               `json:"quiz_progress"`
	AnsweredCount     int                `json:"answered_count"`
	TotalQuestions    int                `json:"total_questions"`
	Stats             *QuizAttemptStats  `json:"stats,omitempty"`
	ExplanationStatus *ExplanationStatus `json:"explanation_status,omitempty"`
}
