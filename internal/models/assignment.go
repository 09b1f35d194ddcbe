package models

import "time"

// StudentCategory is the coordination record between an admin and a student
// for one category. Mode true means quiz mode, false means study mode.
// QuizProgress is the 1-based index of the question to resume at.
type StudentCategory struct {
	StudentID    string `json:"student_id" gorm:"primaryKey;size:255"`
	CategoryID   uint   `json:"category_id" gorm:"primaryKey"`
	Published    bool   `json:"published" gorm:"not null"`
	Mode         bool   `json:"mode" gorm:"not null"`
	QuizProgress *int   `json:"quiz_progress" gorm:"column:quiz_progress"`
	// CompletedAt is set when the current attempt cycle is completed and
	// cleared by an attempt reset.
	CompletedAt *time.Time `json:"completed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Category *Category `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Student  *User     `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

func (StudentCategory) TableName() string {
	return "student_categories"
}

func (a *StudentCategory) QuizModeEnabled() bool {
	return a.Mode
}

func (a *StudentCategory) HasProgress() bool {
	return a.QuizProgress != nil
}

func (a *StudentCategory) IsCompleted() bool {
	return a.CompletedAt != nil
}

// NewStudentCategory returns a fresh assignment in quiz mode.
func NewStudentCategory(studentID string, categoryID uint) *StudentCategory {
	return &StudentCategory{
		StudentID:  studentID,
		CategoryID: categoryID,
		Published:  false,
		Mode:       true,
	}
}
