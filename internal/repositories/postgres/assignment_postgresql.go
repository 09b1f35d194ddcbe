package postgres

import (
	"context"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssignmentPostgreSQL struct {
	db *gorm.DB
}

func NewAssignmentPostgreSQL(db *gorm.DB) repositories.AssignmentRepository {
	return &AssignmentPostgreSQL{db: db}
}

func (a AssignmentPostgreSQL) CreateIfAbsent(ctx context.Context, tx *gorm.DB, assignment *models.StudentCategory) (bool, error) {
	db := a.getDB(tx)
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(assignment)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (a AssignmentPostgreSQL) Get(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (*models.StudentCategory, error) {
	db := a.getDB(tx)
	var assignment models.StudentCategory
	if err := db.WithContext(ctx).
		Where("student_id = ? AND category_id = ?", studentID, categoryID).
		First(&assignment).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (a AssignmentPostgreSQL) GetWithCategory(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (*models.StudentCategory, error) {
	db := a.getDB(tx)
	var assignment models.StudentCategory
	if err := db.WithContext(ctx).
		Preload("Category").
		Where("student_id = ? AND category_id = ?", studentID, categoryID).
		First(&assignment).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (a AssignmentPostgreSQL) ListByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.StudentCategory, error) {
	db := a.getDB(tx)
	var assignments []*models.StudentCategory
	if err := db.WithContext(ctx).
		Preload("Category").
		Where("student_id = ?", studentID).
		Order("category_id ASC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

func (a AssignmentPostgreSQL) ListStudentIDs(ctx context.Context, tx *gorm.DB) ([]string, error) {
	db := a.getDB(tx)
	var ids []string
	if err := db.WithContext(ctx).
		Model(&models.StudentCategory{}).
		Distinct("student_id").
		Order("student_id ASC").
		Pluck("student_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (a AssignmentPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) error {
	db := a.getDB(tx)
	result := db.WithContext(ctx).
		Where("student_id = ? AND category_id = ?", studentID, categoryID).
		Delete(&models.StudentCategory{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (a AssignmentPostgreSQL) UpdateMode(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, mode bool) error {
	return a.updateColumns(ctx, tx, studentID, categoryID, map[string]interface{}{"mode": mode})
}

func (a AssignmentPostgreSQL) UpdatePublished(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, published bool) error {
	return a.updateColumns(ctx, tx, studentID, categoryID, map[string]interface{}{"published": published})
}

func (a AssignmentPostgreSQL) SetProgress(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, progress *int) error {
	var value interface{} = gorm.Expr("NULL")
	if progress != nil {
		value = *progress
	}
	return a.updateColumns(ctx, tx, studentID, categoryID, map[string]interface{}{"quiz_progress": value})
}

func (a AssignmentPostgreSQL) MarkCompleted(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, completedAt time.Time) error {
	return a.updateColumns(ctx, tx, studentID, categoryID, map[string]interface{}{
		"quiz_progress": gorm.Expr("NULL"),
		"completed_at":  completedAt,
	})
}

func (a AssignmentPostgreSQL) ResetAttempt(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) error {
	return a.updateColumns(ctx, tx, studentID, categoryID, map[string]interface{}{
		"mode":          true,
		"quiz_progress": gorm.Expr("NULL"),
		"completed_at":  gorm.Expr("NULL"),
	})
}

func (a AssignmentPostgreSQL) updateColumns(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, columns map[string]interface{}) error {
	db := a.getDB(tx)
	columns["updated_at"] = time.Now()
	result := db.WithContext(ctx).
		Model(&models.StudentCategory{}).
		Where("student_id = ? AND category_id = ?", studentID, categoryID).
		Updates(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (a AssignmentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}
