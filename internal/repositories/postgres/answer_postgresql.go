package postgres

import (
	"context"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ===== ANSWERS =====

type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

func (a AnswerPostgreSQL) CreateIfAbsent(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) (bool, error) {
	db := a.getDB(tx)
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "question_id"}},
			DoNothing: true,
		}).
		Create(answer)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (a AnswerPostgreSQL) Get(ctx context.Context, tx *gorm.DB, studentID string, questionID uint) (*models.StudentAnswer, error) {
	db := a.getDB(tx)
	var answer models.StudentAnswer
	if err := db.WithContext(ctx).
		Where("student_id = ? AND question_id = ?", studentID, questionID).
		First(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (a AnswerPostgreSQL) GetByStudentAndCategory(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) ([]*models.StudentAnswer, error) {
	db := a.getDB(tx)
	var answers []*models.StudentAnswer
	if err := db.WithContext(ctx).
		Joins("JOIN questions q ON q.id = student_answers.question_id").
		Where("student_answers.student_id = ? AND q.category_id = ?", studentID, categoryID).
		Preload("Question").
		Order("student_answers.question_id ASC").
		Find(&answers).Error; err != nil {
		return nil, err
	}
	return answers, nil
}

func (a AnswerPostgreSQL) CountByStudentAndCategory(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (int64, error) {
	db := a.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.StudentAnswer{}).
		Joins("JOIN questions q ON q.id = student_answers.question_id").
		Where("student_answers.student_id = ? AND q.category_id = ?", studentID, categoryID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (a AnswerPostgreSQL) DeleteByStudentAndCategory(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (int64, error) {
	db := a.getDB(tx)
	subQuery := db.Model(&models.Question{}).Select("id").Where("category_id = ?", categoryID)
	result := db.WithContext(ctx).
		Where("student_id = ? AND question_id IN (?)", studentID, subQuery).
		Delete(&models.StudentAnswer{})
	return result.RowsAffected, result.Error
}

func (a AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// ===== EXPLANATIONS =====

type ExplanationPostgreSQL struct {
	db *gorm.DB
}

func NewExplanationPostgreSQL(db *gorm.DB) repositories.ExplanationRepository {
	return &ExplanationPostgreSQL{db: db}
}

func (e ExplanationPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, explanation *models.StudentExplanation) error {
	db := e.getDB(tx)
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}, {Name: "category_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"category_name", "explanations", "entries", "sent_at", "sent_by", "status", "read_at", "updated_at",
			}),
		}).
		Create(explanation).Error
}

func (e ExplanationPostgreSQL) Get(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (*models.StudentExplanation, error) {
	db := e.getDB(tx)
	var explanation models.StudentExplanation
	if err := db.WithContext(ctx).
		Where("student_id = ? AND category_id = ?", studentID, categoryID).
		First(&explanation).Error; err != nil {
		return nil, err
	}
	explanation.Synced = true
	return &explanation, nil
}

func (e ExplanationPostgreSQL) ListByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.StudentExplanation, error) {
	db := e.getDB(tx)
	var explanations []*models.StudentExplanation
	if err := db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("sent_at DESC").
		Find(&explanations).Error; err != nil {
		return nil, err
	}
	for _, explanation := range explanations {
		explanation.Synced = true
	}
	return explanations, nil
}

func (e ExplanationPostgreSQL) MarkAsRead(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, readAt time.Time) (bool, error) {
	db := e.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.StudentExplanation{}).
		Where("student_id = ? AND category_id = ? AND status = ?", studentID, categoryID, models.ExplanationSent).
		Updates(map[string]interface{}{
			"status":     models.ExplanationRead,
			"read_at":    readAt,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (e ExplanationPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.db
}
