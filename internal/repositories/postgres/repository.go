package postgres

import (
	"context"
	"fmt"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

type repository struct {
	db          *gorm.DB
	users       repositories.UserRepository
	categories  repositories.CategoryRepository
	questions   repositories.QuestionRepository
	assignments repositories.AssignmentRepository
	answers     repositories.AnswerRepository
	explanation repositories.ExplanationRepository
}

// NewRepository wires every postgres repository over one connection pool.
func NewRepository(db *gorm.DB) repositories.Repository {
	return &repository{
		db:          db,
		users:       NewUserPostgreSQL(db),
		categories:  NewCategoryPostgreSQL(db),
		questions:   NewQuestionPostgreSQL(db),
		assignments: NewAssignmentPostgreSQL(db),
		answers:     NewAnswerPostgreSQL(db),
		explanation: NewExplanationPostgreSQL(db),
	}
}

func (r *repository) User() repositories.UserRepository             { return r.users }
func (r *repository) Category() repositories.CategoryRepository     { return r.categories }
func (r *repository) Question() repositories.QuestionRepository     { return r.questions }
func (r *repository) Assignment() repositories.AssignmentRepository { return r.assignments }
func (r *repository) Answer() repositories.AnswerRepository         { return r.answers }
func (r *repository) Explanation() repositories.ExplanationRepository {
	return r.explanation
}

func (r *repository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Question{},
		&models.StudentCategory{},
		&models.StudentAnswer{},
		&models.StudentExplanation{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
