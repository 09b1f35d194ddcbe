package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/cache"
	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/quiz"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
)

type overviewService struct {
	repo   repositories.Repository
	cache  cache.CacheService
	ttl    time.Duration
	slog   *slog.Logger
	logger *ServiceLogger
	now    func() time.Time
}

// NewOverviewService caches each computed overview for ttl.
func NewOverviewService(repo repositories.Repository, cacheService cache.CacheService, ttl time.Duration, logger *slog.Logger) OverviewService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &overviewService{
		repo:   repo,
		cache:  cacheService,
		ttl:    ttl,
		slog:   logger,
		logger: NewServiceLogger(logger, LogConfig{Service: "quiz-service", Component: "overview"}),
		now:    time.Now,
	}
}

// StudentOverview serves the cached snapshot and computes it on a miss.
func (s *overviewService) StudentOverview(ctx context.Context, actor *models.User, studentID string) (*models.StudentOverview, error) {
	if err := requireAdmin(actor, "student", studentID, "overview"); err != nil {
		return nil, err
	}

	var cached models.StudentOverview
	err := s.cache.Get(ctx, cache.OverviewKey(studentID), &cached)
	switch {
	case err == nil:
		return &cached, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		s.slog.Warn("Overview cache unavailable", "student_id", studentID, "error", err)
	}

	return s.refresh(ctx, studentID)
}

// RefreshAll recomputes the overview of every student with an assignment.
// It stops at the first persistence outage.
func (s *overviewService) RefreshAll(ctx context.Context) (int, error) {
	ids, err := s.repo.Assignment().ListStudentIDs(ctx, nil)
	if err != nil {
		return 0, storeError(err, nil, "list students")
	}

	refreshed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if _, err := s.refresh(ctx, id); err != nil {
			if IsUnavailable(err) {
				return refreshed, err
			}
			s.slog.Warn("Skipping student overview", "student_id", id, "error", err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

func (s *overviewService) refresh(ctx context.Context, studentID string) (*models.StudentOverview, error) {
	overview, err := s.compute(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, cache.OverviewKey(studentID), overview, s.ttl); err != nil {
		s.slog.Warn("Failed to cache student overview", "student_id", studentID, "error", err)
	}
	return overview, nil
}

func (s *overviewService) compute(ctx context.Context, studentID string) (*models.StudentOverview, error) {
	student, err := s.repo.User().GetByID(ctx, nil, studentID)
	if err != nil {
		return nil, storeError(err, ErrUserNotFound, "load student")
	}
	assignments, err := s.repo.Assignment().ListByStudent(ctx, nil, studentID)
	if err != nil {
		return nil, storeError(err, nil, "list assignments")
	}
	bundles, err := s.repo.Explanation().ListByStudent(ctx, nil, studentID)
	if err != nil {
		return nil, storeError(err, nil, "list explanations")
	}
	statuses := make(map[uint]models.ExplanationStatus, len(bundles))
	for _, bundle := range bundles {
		statuses[bundle.CategoryID] = bundle.Status
	}

	overview := &models.StudentOverview{
		Student:     student,
		Assignments: make([]models.AssignmentOverview, 0, len(assignments)),
		RefreshedAt: s.now(),
	}
	for _, assignment := range assignments {
		questions, err := s.repo.Question().GetByCategory(ctx, nil, assignment.CategoryID)
		if err != nil {
			return nil, storeError(err, nil, "load questions")
		}
		rows, err := s.repo.Answer().GetByStudentAndCategory(ctx, nil, studentID, assignment.CategoryID)
		if err != nil {
			return nil, storeError(err, nil, "load answers")
		}

		item := models.AssignmentOverview{
			CategoryID:     assignment.CategoryID,
			Mode:           assignment.Mode,
			Published:      assignment.Published,
			QuizProgress:   assignment.QuizProgress,
			AnsweredCount:  len(rows),
			TotalQuestions: len(questions),
		}
		if assignment.Category != nil {
			item.CategoryName = assignment.Category.Name
		}
		if len(rows) > 0 || assignment.IsCompleted() {
			stats := storedStats(questions, quiz.AnswerMap(rows), assignment.CompletedAt)
			item.Stats = &stats
		}
		if status, ok := statuses[assignment.CategoryID]; ok {
			item.ExplanationStatus = &status
		}
		overview.Assignments = append(overview.Assignments, item)
	}
	return overview, nil
}
