package repositories

import (
	"context"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"gorm.io/gorm"
)

// AssignmentRepository manages student_categories rows. Every update is a
// single-row statement; an update that matches no row returns
// gorm.ErrRecordNotFound.
type AssignmentRepository interface {
	// CreateIfAbsent inserts the assignment unless the pair already exists.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, assignment *models.StudentCategory) (bool, error)
	Get(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (*models.StudentCategory, error)
	GetWithCategory(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (*models.StudentCategory, error)
	ListByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.StudentCategory, error)
	ListStudentIDs(ctx context.Context, tx *gorm.DB) ([]string, error)
	Delete(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) error

	UpdateMode(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, mode bool) error
	UpdatePublished(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, published bool) error
	// SetProgress stores the 1-based resume index; nil clears it.
	SetProgress(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, progress *int) error
	// MarkCompleted clears the resume index and stamps completed_at.
	MarkCompleted(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, completedAt time.Time) error
	// ResetAttempt returns the pair to quiz mode with no progress and no
	// completion, starting a new attempt cycle.
	ResetAttempt(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) error
}

// AnswerRepository manages student_answers rows, at most one per
// (student, question).
type AnswerRepository interface {
	// CreateIfAbsent inserts the answer unless one already exists for the
	// pair. It reports whether this call created the row.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) (bool, error)
	Get(ctx context.Context, tx *gorm.DB, studentID string, questionID uint) (*models.StudentAnswer, error)
	GetByStudentAndCategory(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) ([]*models.StudentAnswer, error)
	CountByStudentAndCategory(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (int64, error)
	DeleteByStudentAndCategory(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (int64, error)
}

// ExplanationRepository manages student_explanations rows, one bundle per
// (student, category).
type ExplanationRepository interface {
	// Upsert inserts the bundle or overwrites the existing one for the pair.
	Upsert(ctx context.Context, tx *gorm.DB, explanation *models.StudentExplanation) error
	Get(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (*models.StudentExplanation, error)
	ListByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.StudentExplanation, error)
	// MarkAsRead moves a sent bundle to read. It reports whether a row changed.
	MarkAsRead(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, readAt time.Time) (bool, error)
}
