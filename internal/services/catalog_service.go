package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/carvajal-autotech/quiz-service/internal/errors"
	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"github.com/carvajal-autotech/quiz-service/internal/storage"
	"github.com/carvajal-autotech/quiz-service/internal/validator"
)

const questionImageFolder = "questions"

type catalogService struct {
	repo      repositories.Repository
	storage   storage.Provider
	validator *validator.Validator
	slog      *slog.Logger
	logger    *ServiceLogger
	now       func() time.Time
}

func NewCatalogService(repo repositories.Repository, provider storage.Provider, validator *validator.Validator, logger *slog.Logger) CatalogService {
	return &catalogService{
		repo:      repo,
		storage:   provider,
		validator: validator,
		slog:      logger,
		logger:    NewServiceLogger(logger, LogConfig{Service: "quiz-service", Component: "catalog"}),
		now:       time.Now,
	}
}

// ===== CATEGORIES =====

// ListCategories returns every category to admins and only the active,
// assigned ones to students.
func (s *catalogService) ListCategories(ctx context.Context, actor *models.User, filters repositories.CategoryFilters) ([]*models.Category, int64, error) {
	if actor == nil {
		return nil, 0, ErrUnauthorized
	}
	if !actor.IsAdmin() {
		active := true
		filters.IsActive = &active
		filters.StudentID = actor.ID
		filters.CreatedBy = ""
	}

	categories, total, err := s.repo.Category().List(ctx, nil, filters)
	if err != nil {
		return nil, 0, storeError(err, nil, "list categories")
	}
	if err := s.fillQuestionCounts(ctx, categories...); err != nil {
		return nil, 0, err
	}
	return categories, total, nil
}

func (s *catalogService) GetCategory(ctx context.Context, actor *models.User, id uint) (*models.Category, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	category, err := s.repo.Category().GetByID(ctx, nil, id)
	if err != nil {
		return nil, storeError(err, ErrCategoryNotFound, "load category")
	}

	if !actor.IsAdmin() {
		if !category.IsActive {
			return nil, ErrCategoryNotFound
		}
		if _, err := s.repo.Assignment().Get(ctx, nil, actor.ID, id); err != nil {
			return nil, storeError(err, ErrCategoryNotFound, "load assignment")
		}
	}

	if err := s.fillQuestionCounts(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, actor *models.User, req *CategoryRequest) (category *models.Category, err error) {
	op := s.logger.WithOperation(ctx, "create_category", actorID(actor))
	defer func() {
		var id string
		if category != nil {
			id = uintID(category.ID)
		}
		op.LogResult(id, "category", err)
	}()

	if err := requireAdmin(actor, "category", "", "create"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	category = &models.Category{CreatedBy: actor.ID, IsActive: true}
	applyCategoryRequest(category, req)
	if err := s.repo.Category().Create(ctx, nil, category); err != nil {
		return nil, storeError(err, nil, "create category")
	}
	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, actor *models.User, id uint, req *CategoryRequest) (category *models.Category, err error) {
	op := s.logger.WithOperation(ctx, "update_category", actorID(actor))
	defer func() { op.LogResult(uintID(id), "category", err) }()

	if err := requireAdmin(actor, "category", uintID(id), "update"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	category, err = s.repo.Category().GetByID(ctx, nil, id)
	if err != nil {
		return nil, storeError(err, ErrCategoryNotFound, "load category")
	}
	applyCategoryRequest(category, req)
	if err := s.repo.Category().Update(ctx, nil, category); err != nil {
		return nil, storeError(err, ErrCategoryNotFound, "update category")
	}
	if err := s.fillQuestionCounts(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteCategory refuses categories that still hold questions.
func (s *catalogService) DeleteCategory(ctx context.Context, actor *models.User, id uint) (err error) {
	op := s.logger.WithOperation(ctx, "delete_category", actorID(actor))
	defer func() { op.LogResult(uintID(id), "category", err) }()

	if err := requireAdmin(actor, "category", uintID(id), "delete"); err != nil {
		return err
	}

	hasQuestions, err := s.repo.Category().HasQuestions(ctx, nil, id)
	if err != nil {
		return storeError(err, ErrCategoryNotFound, "check questions")
	}
	if hasQuestions {
		return ErrCategoryNotDeletable
	}
	if err := s.repo.Category().Delete(ctx, nil, id); err != nil {
		return storeError(err, ErrCategoryNotFound, "delete category")
	}
	return nil
}

func applyCategoryRequest(category *models.Category, req *CategoryRequest) {
	category.Name = strings.TrimSpace(req.Name)
	category.Description = trimmedOrNil(req.Description)
	category.Icon = trimmedOrNil(req.Icon)
	category.Color = strings.TrimSpace(req.Color)
	if category.Color == "" {
		category.Color = models.DefaultCategoryColor
	}
	if req.IsActive != nil {
		category.IsActive = *req.IsActive
	}
}

func (s *catalogService) fillQuestionCounts(ctx context.Context, categories ...*models.Category) error {
	if len(categories) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(categories))
	for _, category := range categories {
		ids = append(ids, category.ID)
	}
	counts, err := s.repo.Category().QuestionCounts(ctx, nil, ids)
	if err != nil {
		return storeError(err, nil, "count questions")
	}
	for _, category := range categories {
		category.QuestionsCount = counts[category.ID]
	}
	return nil
}

// ===== QUESTIONS =====

func (s *catalogService) ListQuestions(ctx context.Context, actor *models.User, categoryID uint) ([]*models.Question, error) {
	if err := requireAdmin(actor, "question", "", "list"); err != nil {
		return nil, err
	}
	if _, err := s.repo.Category().GetByID(ctx, nil, categoryID); err != nil {
		return nil, storeError(err, ErrCategoryNotFound, "load category")
	}
	questions, err := s.repo.Question().GetByCategory(ctx, nil, categoryID)
	if err != nil {
		return nil, storeError(err, nil, "list questions")
	}
	return questions, nil
}

func (s *catalogService) GetQuestion(ctx context.Context, actor *models.User, id uint) (*models.Question, error) {
	if err := requireAdmin(actor, "question", uintID(id), "read"); err != nil {
		return nil, err
	}
	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		return nil, storeError(err, ErrQuestionNotFound, "load question")
	}
	return question, nil
}

func (s *catalogService) CreateQuestion(ctx context.Context, actor *models.User, req *QuestionRequest) (question *models.Question, err error) {
	op := s.logger.WithOperation(ctx, "create_question", actorID(actor))
	defer func() {
		var id string
		if question != nil {
			id = uintID(question.ID)
		}
		op.LogResult(id, "question", err)
	}()

	if err := requireAdmin(actor, "question", "", "create"); err != nil {
		return nil, err
	}

	question = &models.Question{}
	if err := s.buildQuestion(ctx, question, req); err != nil {
		return nil, err
	}
	if err := s.repo.Question().Create(ctx, nil, question); err != nil {
		return nil, storeError(err, ErrCategoryNotFound, "create question")
	}
	return question, nil
}

func (s *catalogService) UpdateQuestion(ctx context.Context, actor *models.User, id uint, req *QuestionRequest) (question *models.Question, err error) {
	op := s.logger.WithOperation(ctx, "update_question", actorID(actor))
	defer func() { op.LogResult(uintID(id), "question", err) }()

	if err := requireAdmin(actor, "question", uintID(id), "update"); err != nil {
		return nil, err
	}

	question, err = s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		return nil, storeError(err, ErrQuestionNotFound, "load question")
	}
	if err := s.buildQuestion(ctx, question, req); err != nil {
		return nil, err
	}
	if err := s.repo.Question().Update(ctx, nil, question); err != nil {
		return nil, storeError(err, ErrQuestionNotFound, "update question")
	}
	return question, nil
}

// buildQuestion validates req and applies it to question. True/false
// questions always get the canonical option pair.
func (s *catalogService) buildQuestion(ctx context.Context, question *models.Question, req *QuestionRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}
	if _, err := s.repo.Category().GetByID(ctx, nil, req.CategoryID); err != nil {
		return storeError(err, ErrCategoryNotFound, "load category")
	}

	options := make([]string, 0, len(req.Options))
	for _, option := range req.Options {
		options = append(options, strings.TrimSpace(option))
	}
	switch req.Type {
	case models.TrueFalse:
		options = models.TrueFalseOptions
	case models.FreeText:
		options = nil
	}

	question.CategoryID = req.CategoryID
	question.Type = req.Type
	question.QuestionText = strings.TrimSpace(req.Question)
	question.CorrectAnswer = strings.TrimSpace(req.CorrectAnswer)
	question.Explanation = trimmedOrNil(req.Explanation)
	question.TimeLimit = req.TimeLimit
	if err := question.SetOptions(options); err != nil {
		return err
	}
	return s.validator.Question().ValidateQuestion(question)
}

func (s *catalogService) DeleteQuestion(ctx context.Context, actor *models.User, id uint) (err error) {
	op := s.logger.WithOperation(ctx, "delete_question", actorID(actor))
	defer func() { op.LogResult(uintID(id), "question", err) }()

	if err := requireAdmin(actor, "question", uintID(id), "delete"); err != nil {
		return err
	}

	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		return storeError(err, ErrQuestionNotFound, "load question")
	}
	if err := s.repo.Question().Delete(ctx, nil, id); err != nil {
		return storeError(err, ErrQuestionNotFound, "delete question")
	}
	s.removeImage(ctx, question.ImageURL)
	return nil
}

// UploadQuestionImage normalizes the image, stores it and points the
// question at it. The previous image is removed best-effort.
func (s *catalogService) UploadQuestionImage(ctx context.Context, actor *models.User, id uint, image io.Reader) (question *models.Question, err error) {
	op := s.logger.WithOperation(ctx, "upload_question_image", actorID(actor))
	defer func() { op.LogResult(uintID(id), "question", err) }()

	if err := requireAdmin(actor, "question", uintID(id), "upload_image"); err != nil {
		return nil, err
	}

	question, err = s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		return nil, storeError(err, ErrQuestionNotFound, "load question")
	}

	data, err := storage.NormalizeImage(image)
	if err != nil {
		if errors.Is(err, storage.ErrImageTooLarge) {
			return nil, apperrors.Single("image", "must be at most 10MB", nil)
		}
		return nil, apperrors.Single("image", "must be a JPEG, PNG, GIF, BMP or TIFF image", nil)
	}

	objectPath := storage.ObjectPath(questionImageFolder, ".jpg", s.now())
	url, err := s.storage.Upload(ctx, objectPath, bytes.NewReader(data), int64(len(data)), "image/jpeg")
	if err != nil {
		return nil, errors.Join(ErrPersistenceUnavailable, err)
	}

	previous := question.ImageURL
	question.ImageURL = &url
	if err := s.repo.Question().Update(ctx, nil, question); err != nil {
		s.removeImage(ctx, &url)
		return nil, storeError(err, ErrQuestionNotFound, "update question")
	}
	s.removeImage(ctx, previous)
	return question, nil
}

func (s *catalogService) removeImage(ctx context.Context, imageURL *string) {
	if imageURL == nil {
		return
	}
	base := s.storage.URL("")
	if !strings.HasPrefix(*imageURL, base) {
		return
	}
	objectPath := strings.TrimPrefix(*imageURL, base)
	if err := s.storage.Delete(ctx, objectPath); err != nil {
		s.slog.Warn("Failed to delete question image", "object_path", objectPath, "error", err)
	}
}
