package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/cache"
	"github.com/carvajal-autotech/quiz-service/internal/events"
	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"github.com/carvajal-autotech/quiz-service/internal/validator"
	"gorm.io/gorm"
)

// pendingExplanationTTL bounds how long a bundle that never reached the
// store is kept for retry.
const pendingExplanationTTL = 7 * 24 * time.Hour

type publicationService struct {
	repo      repositories.Repository
	cache     cache.CacheService
	sessions  SessionCloser
	events    *eventEmitter
	validator *validator.Validator
	slog      *slog.Logger
	logger    *ServiceLogger
	now       func() time.Time
}

func NewPublicationService(
	repo repositories.Repository,
	cacheService cache.CacheService,
	sessions SessionCloser,
	publisher events.EventPublisher,
	validator *validator.Validator,
	logger *slog.Logger,
) PublicationService {
	return &publicationService{
		repo:      repo,
		cache:     cacheService,
		sessions:  sessions,
		events:    newEventEmitter(publisher, logger),
		validator: validator,
		slog:      logger,
		logger:    NewServiceLogger(logger, LogConfig{Service: "quiz-service", Component: "publication"}),
		now:       time.Now,
	}
}

// ===== ASSIGNMENTS =====

func (s *publicationService) Assign(ctx context.Context, actor *models.User, studentID string, categoryID uint) (assignment *models.StudentCategory, err error) {
	op := s.logger.WithOperation(ctx, "assign_category", actorID(actor))
	defer func() { op.LogResult(pairID(studentID, categoryID), "assignment", err) }()

	if err := requireAdmin(actor, "assignment", pairID(studentID, categoryID), "create"); err != nil {
		return nil, err
	}

	student, err := s.repo.User().GetByID(ctx, nil, studentID)
	if err != nil {
		return nil, storeError(err, ErrUserNotFound, "load student")
	}
	if student.Role != models.RoleStudent {
		return nil, ErrNotStudentUser
	}
	if _, err := s.repo.Category().GetByID(ctx, nil, categoryID); err != nil {
		return nil, storeError(err, ErrCategoryNotFound, "load category")
	}

	created, err := s.repo.Assignment().CreateIfAbsent(ctx, nil, models.NewStudentCategory(studentID, categoryID))
	if err != nil {
		return nil, storeError(err, nil, "create assignment")
	}
	assignment, err = s.repo.Assignment().Get(ctx, nil, studentID, categoryID)
	if err != nil {
		return nil, storeError(err, ErrAssignmentNotFound, "load assignment")
	}
	if created {
		s.invalidateOverview(ctx, studentID)
	}
	return assignment, nil
}

func (s *publicationService) Unassign(ctx context.Context, actor *models.User, studentID string, categoryID uint) (err error) {
	op := s.logger.WithOperation(ctx, "unassign_category", actorID(actor))
	defer func() { op.LogResult(pairID(studentID, categoryID), "assignment", err) }()

	if err := requireAdmin(actor, "assignment", pairID(studentID, categoryID), "delete"); err != nil {
		return err
	}

	s.sessions.CloseSession(ctx, studentID, categoryID)
	s.dropPendingBundle(ctx, studentID, categoryID)
	if err := s.repo.Assignment().Delete(ctx, nil, studentID, categoryID); err != nil {
		return storeError(err, ErrAssignmentNotFound, "delete assignment")
	}
	s.invalidateOverview(ctx, studentID)
	return nil
}

func (s *publicationService) ListStudentAssignments(ctx context.Context, actor *models.User, studentID string) ([]*AssignmentSummary, error) {
	if err := requireSelfOrAdmin(actor, studentID, "assignment", "list"); err != nil {
		return nil, err
	}

	assignments, err := s.repo.Assignment().ListByStudent(ctx, nil, studentID)
	if err != nil {
		return nil, storeError(err, nil, "list assignments")
	}

	categoryIDs := make([]uint, 0, len(assignments))
	for _, assignment := range assignments {
		categoryIDs = append(categoryIDs, assignment.CategoryID)
	}
	counts, err := s.repo.Category().QuestionCounts(ctx, nil, categoryIDs)
	if err != nil {
		return nil, storeError(err, nil, "count questions")
	}
	statuses, err := s.explanationStatuses(ctx, studentID, actor.IsAdmin())
	if err != nil {
		return nil, err
	}

	summaries := make([]*AssignmentSummary, 0, len(assignments))
	for _, assignment := range assignments {
		// Students never see inactive categories.
		if assignment.Category != nil && !assignment.Category.IsActive && !actor.IsAdmin() {
			continue
		}
		answered, err := s.repo.Answer().CountByStudentAndCategory(ctx, nil, studentID, assignment.CategoryID)
		if err != nil {
			return nil, storeError(err, nil, "count answers")
		}

		summary := &AssignmentSummary{
			CategoryID:        assignment.CategoryID,
			Mode:              assignment.Mode,
			Published:         assignment.Published,
			QuizProgress:      assignment.QuizProgress,
			Completed:         assignment.IsCompleted(),
			AnsweredCount:     int(answered),
			TotalQuestions:    counts[assignment.CategoryID],
			ExplanationStatus: statuses[assignment.CategoryID],
		}
		if assignment.Category != nil {
			summary.CategoryName = assignment.Category.Name
			summary.CategoryColor = assignment.Category.Color
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// explanationStatuses maps category id to bundle status. Pending bundles are
// only merged in for admin views.
func (s *publicationService) explanationStatuses(ctx context.Context, studentID string, includePending bool) (map[uint]*models.ExplanationStatus, error) {
	bundles, err := s.repo.Explanation().ListByStudent(ctx, nil, studentID)
	if err != nil {
		return nil, storeError(err, nil, "list explanations")
	}
	statuses := make(map[uint]*models.ExplanationStatus, len(bundles))
	for _, bundle := range bundles {
		status := bundle.Status
		statuses[bundle.CategoryID] = &status
	}
	if !includePending {
		return statuses, nil
	}

	pending, err := s.pendingBundles(ctx, cache.PendingExplanationStudentPattern(studentID))
	if err != nil {
		s.slog.Warn("Pending explanations unavailable", "student_id", studentID, "error", err)
		return statuses, nil
	}
	for _, bundle := range pending {
		status := bundle.Status
		statuses[bundle.CategoryID] = &status
	}
	return statuses, nil
}

// ===== MODE & PUBLICATION =====

func (s *publicationService) ToggleMode(ctx context.Context, actor *models.User, studentID string, categoryID uint) (assignment *models.StudentCategory, err error) {
	op := s.logger.WithOperation(ctx, "toggle_mode", actorID(actor))
	defer func() { op.LogResult(pairID(studentID, categoryID), "assignment", err) }()

	if err := requireAdmin(actor, "assignment", pairID(studentID, categoryID), "toggle_mode"); err != nil {
		return nil, err
	}

	assignment, err = s.repo.Assignment().Get(ctx, nil, studentID, categoryID)
	if err != nil {
		return nil, storeError(err, ErrAssignmentNotFound, "load assignment")
	}

	mode := !assignment.Mode
	if !mode {
		// Flush the live attempt while answers are still accepted.
		s.sessions.CloseSession(ctx, studentID, categoryID)
	}
	// A manual toggle overrides any send still waiting for the store.
	s.dropPendingBundle(ctx, studentID, categoryID)
	if err := s.repo.Assignment().UpdateMode(ctx, nil, studentID, categoryID, mode); err != nil {
		return nil, storeError(err, ErrAssignmentNotFound, "update mode")
	}
	assignment.Mode = mode
	assignment.UpdatedAt = s.now()

	s.invalidateOverview(ctx, studentID)
	s.events.emit(ctx, events.NewEvent(events.EventModeChanged, studentID, events.ModeChangedEvent{
		StudentID:  studentID,
		CategoryID: categoryID,
		Mode:       mode,
		ChangedBy:  actor.ID,
	}))
	return assignment, nil
}

func (s *publicationService) TogglePublished(ctx context.Context, actor *models.User, studentID string, categoryID uint, published bool) (assignment *models.StudentCategory, err error) {
	op := s.logger.WithOperation(ctx, "toggle_published", actorID(actor))
	defer func() { op.LogResult(pairID(studentID, categoryID), "assignment", err) }()

	if err := requireAdmin(actor, "assignment", pairID(studentID, categoryID), "toggle_published"); err != nil {
		return nil, err
	}

	if err := s.repo.Assignment().UpdatePublished(ctx, nil, studentID, categoryID, published); err != nil {
		return nil, storeError(err, ErrAssignmentNotFound, "update published")
	}
	assignment, err = s.repo.Assignment().Get(ctx, nil, studentID, categoryID)
	if err != nil {
		return nil, storeError(err, ErrAssignmentNotFound, "load assignment")
	}

	s.invalidateOverview(ctx, studentID)
	s.events.emit(ctx, events.NewEvent(events.EventPublicationChanged, studentID, events.PublicationChangedEvent{
		StudentID:  studentID,
		CategoryID: categoryID,
		Published:  published,
		ChangedBy:  actor.ID,
	}))
	return assignment, nil
}

// ResetAttempt deletes the pair's answers and returns it to quiz mode with
// no progress, opening a new attempt cycle.
func (s *publicationService) ResetAttempt(ctx context.Context, actor *models.User, studentID string, categoryID uint) (err error) {
	op := s.logger.WithOperation(ctx, "reset_attempt", actorID(actor))
	defer func() { op.LogResult(pairID(studentID, categoryID), "assignment", err) }()

	if err := requireAdmin(actor, "assignment", pairID(studentID, categoryID), "reset"); err != nil {
		return err
	}

	s.sessions.CloseSession(ctx, studentID, categoryID)
	s.dropPendingBundle(ctx, studentID, categoryID)

	var removed int64
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.Assignment().ResetAttempt(ctx, tx, studentID, categoryID); err != nil {
			return err
		}
		n, err := s.repo.Answer().DeleteByStudentAndCategory(ctx, tx, studentID, categoryID)
		removed = n
		return err
	})
	if err != nil {
		return storeError(err, ErrAssignmentNotFound, "reset attempt")
	}

	s.invalidateOverview(ctx, studentID)
	s.events.emit(ctx, events.NewEvent(events.EventAttemptReset, studentID, events.AttemptResetEvent{
		StudentID:      studentID,
		CategoryID:     categoryID,
		ResetBy:        actor.ID,
		AnswersRemoved: removed,
	}))
	return nil
}

// ===== EXPLANATIONS =====

// SendExplanations stores the bundle and switches the pair to study mode in
// one transaction. When the store is down the bundle is queued in the fallback
// cache as pending and ErrExplanationsUnsynced is reported. The student sees
// neither the bundle nor the mode change until the retry commits both.
func (s *publicationService) SendExplanations(ctx context.Context, actor *models.User, studentID string, categoryID uint, req *SendExplanationsRequest) (bundle *models.StudentExplanation, err error) {
	op := s.logger.WithOperation(ctx, "send_explanations", actorID(actor))
	defer func() { op.LogResult(pairID(studentID, categoryID), "explanation", err) }()

	if err := requireAdmin(actor, "explanation", pairID(studentID, categoryID), "send"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.validator.Question().ValidateExplanationEntries(req.Entries); err != nil {
		return nil, err
	}

	bundle = &models.StudentExplanation{
		StudentID:    studentID,
		CategoryID:   categoryID,
		CategoryName: s.categoryName(ctx, categoryID, req.CategoryName),
		Explanations: explanationText(req.Entries),
		SentAt:       s.now(),
		SentBy:       actor.ID,
		Status:       models.ExplanationSent,
	}
	if err := bundle.SetEntries(req.Entries); err != nil {
		return nil, err
	}

	s.sessions.CloseSession(ctx, studentID, categoryID)

	if err := s.storeBundle(ctx, bundle); err != nil {
		if !repositories.IsUnavailable(err) {
			return nil, storeError(err, ErrAssignmentNotFound, "send explanations")
		}
		if cacheErr := s.cache.Set(ctx, cache.PendingExplanationKey(studentID, categoryID), bundle, pendingExplanationTTL); cacheErr != nil {
			s.slog.Error("Explanation bundle lost, fallback cache unavailable",
				"student_id", studentID, "category_id", categoryID, "error", cacheErr)
			return nil, storeError(err, nil, "send explanations")
		}
		s.slog.Warn("Explanation bundle held in fallback cache",
			"student_id", studentID, "category_id", categoryID, "error", err)
		bundle.Status = models.ExplanationPending
		bundle.Synced = false
		s.emitSent(ctx, bundle)
		return bundle, ErrExplanationsUnsynced
	}

	bundle.Synced = true
	s.dropPendingBundle(ctx, studentID, categoryID)
	s.invalidateOverview(ctx, studentID)
	s.emitSent(ctx, bundle)
	return bundle, nil
}

// storeBundle writes the bundle and forces study mode atomically.
func (s *publicationService) storeBundle(ctx context.Context, bundle *models.StudentExplanation) error {
	bundle.Status = models.ExplanationSent
	return s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.Assignment().UpdateMode(ctx, tx, bundle.StudentID, bundle.CategoryID, false); err != nil {
			return err
		}
		return s.repo.Explanation().Upsert(ctx, tx, bundle)
	})
}

func (s *publicationService) emitSent(ctx context.Context, bundle *models.StudentExplanation) {
	s.events.emit(ctx, events.NewEvent(events.EventExplanationsSent, bundle.StudentID, events.ExplanationsSentEvent{
		StudentID:    bundle.StudentID,
		CategoryID:   bundle.CategoryID,
		CategoryName: bundle.CategoryName,
		EntryCount:   len(bundle.EntryList()),
		SentBy:       bundle.SentBy,
		SentAt:       bundle.SentAt,
		Synced:       bundle.Synced,
	}))
}

func (s *publicationService) categoryName(ctx context.Context, categoryID uint, requested string) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	category, err := s.repo.Category().GetByID(ctx, nil, categoryID)
	if err != nil {
		s.slog.Warn("Category name unavailable for explanation bundle", "category_id", categoryID, "error", err)
		return ""
	}
	return category.Name
}

// GetExplanations returns the stored bundle. Admins also see a send still
// pending in the fallback cache, which takes precedence as the newer one.
func (s *publicationService) GetExplanations(ctx context.Context, actor *models.User, studentID string, categoryID uint) (*models.StudentExplanation, error) {
	if err := requireSelfOrAdmin(actor, studentID, "explanation", "read"); err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		var pending models.StudentExplanation
		err := s.cache.Get(ctx, cache.PendingExplanationKey(studentID, categoryID), &pending)
		switch {
		case err == nil:
			pending.Status = models.ExplanationPending
			pending.Synced = false
			return &pending, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			s.slog.Warn("Fallback cache unavailable", "student_id", studentID, "category_id", categoryID, "error", err)
		}
	}
	return loadExplanation(ctx, s.repo, studentID, categoryID)
}

// MarkAsRead moves the bundle from sent to read. Marking a read bundle again
// returns it unchanged.
func (s *publicationService) MarkAsRead(ctx context.Context, actor *models.User, studentID string, categoryID uint) (bundle *models.StudentExplanation, err error) {
	op := s.logger.WithOperation(ctx, "mark_explanations_read", actorID(actor))
	defer func() { op.LogResult(pairID(studentID, categoryID), "explanation", err) }()

	if err := requireSelfOrAdmin(actor, studentID, "explanation", "mark_read"); err != nil {
		return nil, err
	}

	bundle, err = loadExplanation(ctx, s.repo, studentID, categoryID)
	if err != nil {
		return nil, err
	}
	if bundle.IsRead() {
		return bundle, nil
	}

	readAt := s.now()
	changed, err := s.repo.Explanation().MarkAsRead(ctx, nil, studentID, categoryID, readAt)
	if err != nil {
		return nil, storeError(err, ErrExplanationNotFound, "mark explanations read")
	}
	if changed {
		bundle.Status = models.ExplanationRead
		bundle.ReadAt = &readAt
	}

	s.events.emit(ctx, events.NewEvent(events.EventExplanationsRead, studentID, events.ExplanationsReadEvent{
		StudentID:  studentID,
		CategoryID: categoryID,
		ReadAt:     readAt,
	}))
	return bundle, nil
}

func (s *publicationService) RetryPendingExplanations(ctx context.Context) (int, error) {
	bundles, err := s.pendingBundles(ctx, cache.PendingExplanationPattern)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, bundle := range bundles {
		key := cache.PendingExplanationKey(bundle.StudentID, bundle.CategoryID)
		err := s.storeBundle(ctx, bundle)
		switch {
		case err == nil:
			synced++
			s.invalidateOverview(ctx, bundle.StudentID)
		case repositories.IsUnavailable(err):
			return synced, storeError(err, nil, "retry explanations")
		default:
			s.slog.Warn("Dropping pending explanation bundle",
				"student_id", bundle.StudentID, "category_id", bundle.CategoryID, "error", err)
		}
		if err := s.cache.Delete(ctx, key); err != nil {
			s.slog.Warn("Failed to delete pending bundle", "key", key, "error", err)
		}
	}
	if synced > 0 {
		s.slog.Info("Pending explanation bundles synced", "count", synced)
	}
	return synced, nil
}

func (s *publicationService) pendingBundles(ctx context.Context, pattern string) ([]*models.StudentExplanation, error) {
	keys, err := s.cache.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}
	bundles := make([]*models.StudentExplanation, 0, len(keys))
	for _, key := range keys {
		var bundle models.StudentExplanation
		if err := s.cache.Get(ctx, key, &bundle); err != nil {
			if !errors.Is(err, cache.ErrCacheMiss) {
				s.slog.Warn("Unreadable pending bundle", "key", key, "error", err)
			}
			continue
		}
		bundle.Status = models.ExplanationPending
		bundle.Synced = false
		bundles = append(bundles, &bundle)
	}
	return bundles, nil
}

func (s *publicationService) dropPendingBundle(ctx context.Context, studentID string, categoryID uint) {
	if err := s.cache.Delete(ctx, cache.PendingExplanationKey(studentID, categoryID)); err != nil {
		s.slog.Warn("Failed to drop pending explanation bundle", "student_id", studentID, "category_id", categoryID, "error", err)
	}
}

func (s *publicationService) invalidateOverview(ctx context.Context, studentID string) {
	if err := s.cache.Delete(ctx, cache.OverviewKey(studentID)); err != nil {
		s.slog.Warn("Failed to invalidate student overview", "student_id", studentID, "error", err)
	}
}

// loadExplanation returns the committed bundle only. Pending sends stay
// invisible to students until they are stored together with the mode change.
func loadExplanation(ctx context.Context, repo repositories.Repository, studentID string, categoryID uint) (*models.StudentExplanation, error) {
	bundle, err := repo.Explanation().Get(ctx, nil, studentID, categoryID)
	if err != nil {
		return nil, storeError(err, ErrExplanationNotFound, "load explanations")
	}
	return bundle, nil
}

// explanationText renders the entries as the plain-text bundle body.
func explanationText(entries []models.ExplanationEntry) string {
	parts := make([]string, 0, len(entries))
	n := 0
	for _, entry := range entries {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		n++
		if question := strings.TrimSpace(entry.QuestionText); question != "" {
			parts = append(parts, fmt.Sprintf("%d. %s\n%s", n, question, text))
		} else {
			parts = append(parts, fmt.Sprintf("%d. %s", n, text))
		}
	}
	return strings.Join(parts, "\n\n")
}

func actorID(actor *models.User) string {
	if actor == nil {
		return ""
	}
	return actor.ID
}
