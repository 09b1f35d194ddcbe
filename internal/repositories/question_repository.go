package repositories

import (
	"context"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"gorm.io/gorm"
)

// QuestionRepository interface for question-specific operations
type QuestionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// GetByCategory returns the catalog-ordered question list (by id).
	GetByCategory(ctx context.Context, tx *gorm.DB, categoryID uint) ([]*models.Question, error)
	CountByCategory(ctx context.Context, tx *gorm.DB, categoryID uint) (int64, error)
}

// CategoryRepository interface for category operations
type CategoryRepository interface {
	Create(ctx context.Context, tx *gorm.DB, category *models.Category) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Category, error)
	Update(ctx context.Context, tx *gorm.DB, category *models.Category) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	List(ctx context.Context, tx *gorm.DB, filters CategoryFilters) ([]*models.Category, int64, error)
	// QuestionCounts maps category id to its number of questions.
	QuestionCounts(ctx context.Context, tx *gorm.DB, categoryIDs []uint) (map[uint]int, error)
	HasQuestions(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
}
