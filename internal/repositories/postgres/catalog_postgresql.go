package postgres

import (
	"context"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

// ===== CATEGORIES =====

type CategoryPostgreSQL struct {
	db *gorm.DB
}

func NewCategoryPostgreSQL(db *gorm.DB) repositories.CategoryRepository {
	return &CategoryPostgreSQL{db: db}
}

func (c CategoryPostgreSQL) Create(ctx context.Context, tx *gorm.DB, category *models.Category) error {
	db := c.getDB(tx)
	return db.WithContext(ctx).Create(category).Error
}

func (c CategoryPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Category, error) {
	db := c.getDB(tx)
	var category models.Category
	if err := db.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (c CategoryPostgreSQL) Update(ctx context.Context, tx *gorm.DB, category *models.Category) error {
	db := c.getDB(tx)
	return db.WithContext(ctx).Save(category).Error
}

func (c CategoryPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := c.getDB(tx)
	result := db.WithContext(ctx).Delete(&models.Category{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (c CategoryPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.CategoryFilters) ([]*models.Category, int64, error) {
	db := c.getDB(tx)
	var categories []*models.Category
	var total int64

	query := db.WithContext(ctx).Model(&models.Category{})
	if filters.IsActive != nil {
		query = query.Where("categories.is_active = ?", *filters.IsActive)
	}
	if filters.CreatedBy != "" {
		query = query.Where("categories.created_by = ?", filters.CreatedBy)
	}
	if filters.StudentID != "" {
		query = query.
			Joins("JOIN student_categories sc ON sc.category_id = categories.id").
			Where("sc.student_id = ?", filters.StudentID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filters.Limit, filters.Offset)
	if err := query.Order("categories.name ASC").Find(&categories).Error; err != nil {
		return nil, 0, err
	}

	if len(categories) > 0 {
		ids := make([]uint, 0, len(categories))
		for _, category := range categories {
			ids = append(ids, category.ID)
		}
		counts, err := c.QuestionCounts(ctx, tx, ids)
		if err != nil {
			return nil, 0, err
		}
		for _, category := range categories {
			category.QuestionsCount = counts[category.ID]
		}
	}

	return categories, total, nil
}

func (c CategoryPostgreSQL) QuestionCounts(ctx context.Context, tx *gorm.DB, categoryIDs []uint) (map[uint]int, error) {
	db := c.getDB(tx)
	counts := make(map[uint]int, len(categoryIDs))
	if len(categoryIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		CategoryID uint
		Count      int
	}
	if err := db.WithContext(ctx).
		Model(&models.Question{}).
		Select("category_id, COUNT(*) AS count").
		Where("category_id IN ?", categoryIDs).
		Group("category_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.CategoryID] = row.Count
	}
	return counts, nil
}

func (c CategoryPostgreSQL) HasQuestions(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := c.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Question{}).
		Where("category_id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (c CategoryPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

// ===== QUESTIONS =====

type QuestionPostgreSQL struct {
	db *gorm.DB
}

func NewQuestionPostgreSQL(db *gorm.DB) repositories.QuestionRepository {
	return &QuestionPostgreSQL{db: db}
}

func (q QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).Create(question).Error
}

func (q QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	db := q.getDB(tx)
	var question models.Question
	if err := db.WithContext(ctx).First(&question, id).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

func (q QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).Save(question).Error
}

func (q QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx)
	result := db.WithContext(ctx).Delete(&models.Question{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (q QuestionPostgreSQL) GetByCategory(ctx context.Context, tx *gorm.DB, categoryID uint) ([]*models.Question, error) {
	db := q.getDB(tx)
	var questions []*models.Question
	if err := db.WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("id ASC").
		Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (q QuestionPostgreSQL) CountByCategory(ctx context.Context, tx *gorm.DB, categoryID uint) (int64, error) {
	db := q.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Question{}).
		Where("category_id = ?", categoryID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (q QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}
