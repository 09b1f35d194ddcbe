package repositories

import (
	"context"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type UserFilters struct {
	Role     *models.UserRole `json:"role"`
	IsActive *bool            `json:"is_active"`
	Search   string           `json:"search"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

type CategoryFilters struct {
	IsActive  *bool  `json:"is_active"`
	CreatedBy string `json:"created_by"`
	// StudentID restricts the list to categories assigned to that student.
	StudentID string `json:"student_id"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
}

// ===== AGGREGATE =====

// Repository groups every table-level repository behind one handle so a
// service can run several of them inside a single transaction.
type Repository interface {
	User() UserRepository
	Category() CategoryRepository
	Question() QuestionRepository
	Assignment() AssignmentRepository
	Answer() AnswerRepository
	Explanation() ExplanationRepository

	// Transaction runs fn inside a database transaction. Repository calls made
	// with the tx handle participate in it; a nil tx means "no transaction".
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	Ping(ctx context.Context) error
}
