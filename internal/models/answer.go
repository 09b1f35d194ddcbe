package models

import "time"

// AnswerTimeout is stored when a question's countdown expires unanswered.
const AnswerTimeout = "TIMEOUT"

// StudentAnswer is written at most once per (student, question).
type StudentAnswer struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	StudentID  string    `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_student_question"`
	QuestionID uint      `json:"question_id" gorm:"not null;uniqueIndex:idx_student_question"`
	Answer     string    `json:"answer" gorm:"type:text;not null"`
	IsCorrect  *bool     `json:"is_correct"`
	AnsweredAt time.Time `json:"answered_at" gorm:"not null"`
	TimeSpent  *int      `json:"time_spent" gorm:"column:time_spent"` // seconds

	// Relations
	Question *Question `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
}

func (StudentAnswer) TableName() string {
	return "student_answers"
}

func (a *StudentAnswer) IsTimeout() bool {
	return a.Answer == AnswerTimeout
}

func (a *StudentAnswer) Correct() bool {
	return a.IsCorrect != nil && *a.IsCorrect
}

// NeedsReview is true for free text answers that were not auto-matched.
func (a *StudentAnswer) NeedsReview() bool {
	return a.IsCorrect == nil
}
