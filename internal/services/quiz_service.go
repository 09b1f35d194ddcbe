package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/cache"
	"github.com/carvajal-autotech/quiz-service/internal/events"
	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/monitoring"
	"github.com/carvajal-autotech/quiz-service/internal/quiz"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
)

type sessionKey struct {
	studentID  string
	categoryID uint
}

type quizService struct {
	repo    repositories.Repository
	cache   cache.CacheService
	events  *eventEmitter
	metrics *monitoring.Metrics
	engine  quiz.Config
	slog    *slog.Logger
	logger  *ServiceLogger

	mu       sync.Mutex
	sessions map[sessionKey]*quiz.Session
}

func NewQuizService(
	repo repositories.Repository,
	cacheService cache.CacheService,
	publisher events.EventPublisher,
	metrics *monitoring.Metrics,
	engine quiz.Config,
	logger *slog.Logger,
) QuizService {
	return &quizService{
		repo:     repo,
		cache:    cacheService,
		events:   newEventEmitter(publisher, logger),
		metrics:  metrics,
		engine:   engine,
		slog:     logger,
		logger:   NewServiceLogger(logger, LogConfig{Service: "quiz-service", Component: "quiz"}),
		sessions: make(map[sessionKey]*quiz.Session),
	}
}

// ===== SESSION REGISTRY =====

func (s *quizService) lookup(studentID string, categoryID uint) *quiz.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionKey{studentID, categoryID}]
}

// live returns the open session for the pair or ErrQuizNotActive.
func (s *quizService) live(studentID string, categoryID uint) (*quiz.Session, error) {
	session := s.lookup(studentID, categoryID)
	if session == nil || session.Closed() {
		return nil, ErrQuizNotActive
	}
	return session, nil
}

func (s *quizService) register(session *quiz.Session) {
	s.mu.Lock()
	s.sessions[sessionKey{session.StudentID(), session.CategoryID()}] = session
	count := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(count)
}

// drop removes the pair's entry if it still points at session.
func (s *quizService) drop(session *quiz.Session) {
	key := sessionKey{session.StudentID(), session.CategoryID()}
	s.mu.Lock()
	if s.sessions[key] == session {
		delete(s.sessions, key)
	}
	count := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(count)
}

func (s *quizService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ===== OPERATIONS =====

func (s *quizService) LoadResumeState(ctx context.Context, studentID string, categoryID uint) (*ResumeState, error) {
	assignment, err := s.repo.Assignment().Get(ctx, nil, studentID, categoryID)
	if err != nil {
		return nil, storeError(err, ErrAssignmentNotFound, "load assignment")
	}
	total, err := s.repo.Question().CountByCategory(ctx, nil, categoryID)
	if err != nil {
		return nil, storeError(err, nil, "count questions")
	}

	state := &ResumeState{
		CategoryID:     categoryID,
		QuizProgress:   assignment.QuizProgress,
		TotalQuestions: int(total),
		Completed:      assignment.IsCompleted(),
		Mode:           assignment.Mode,
	}
	if p := assignment.QuizProgress; p != nil {
		state.CanResume = assignment.Mode && !state.Completed && *p >= 1 && *p <= state.TotalQuestions
	}
	return state, nil
}

func (s *quizService) Start(ctx context.Context, studentID string, categoryID uint, req *StartQuizRequest) (snap *quiz.Snapshot, err error) {
	op := s.logger.WithOperation(ctx, "start_quiz", studentID)
	defer func() { op.LogResult(pairID(studentID, categoryID), "quiz", err) }()

	if req == nil {
		req = &StartQuizRequest{}
	}

	if existing := s.lookup(studentID, categoryID); existing != nil {
		if !existing.Closed() && existing.State() != quiz.StateCompleted {
			current := existing.Snapshot()
			return &current, quiz.ErrAlreadyStarted
		}
		s.drop(existing)
	}

	assignment, err := s.repo.Assignment().GetWithCategory(ctx, nil, studentID, categoryID)
	if err != nil {
		return nil, storeError(err, ErrAssignmentNotFound, "load assignment")
	}
	if !assignment.Mode {
		return nil, ErrQuizModeDisabled
	}
	if assignment.Category != nil && !assignment.Category.IsActive {
		return nil, ErrCategoryInactive
	}
	if assignment.IsCompleted() {
		return nil, ErrAttemptAlreadyCompleted
	}

	questions, err := s.repo.Question().GetByCategory(ctx, nil, categoryID)
	if err != nil {
		return nil, storeError(err, nil, "load questions")
	}
	existing, err := s.repo.Answer().GetByStudentAndCategory(ctx, nil, studentID, categoryID)
	if err != nil {
		return nil, storeError(err, nil, "load answers")
	}

	startIndex := 0
	resumed := false
	if progress := assignment.QuizProgress; progress != nil {
		if req.Resume && *progress >= 1 {
			startIndex = *progress - 1
			resumed = true
		} else if err := s.repo.Assignment().SetProgress(ctx, nil, studentID, categoryID, nil); err != nil {
			return nil, storeError(err, ErrAssignmentNotFound, "clear progress")
		}
	}

	session := quiz.NewSession(s.engine, s.storeFor(studentID, categoryID), studentID, categoryID, questions, existing,
		quiz.WithLogger(s.slog),
		quiz.WithHooks(quiz.Hooks{
			OnTimeout:   s.onTimeout,
			OnCompleted: s.onCompleted,
		}),
	)
	started, err := session.Start(startIndex)
	if err != nil {
		return nil, err
	}
	s.register(session)

	s.metrics.ObserveQuizEvent("started")
	s.events.emit(ctx, events.NewEvent(events.EventQuizStarted, studentID, events.QuizStartedEvent{
		StudentID:      studentID,
		CategoryID:     categoryID,
		StartIndex:     started.CurrentIndex,
		TotalQuestions: started.TotalQuestions,
		Resumed:        resumed,
	}))
	return &started, nil
}

func (s *quizService) Snapshot(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error) {
	session, err := s.live(studentID, categoryID)
	if err != nil {
		return nil, err
	}
	snap := session.Snapshot()
	return &snap, nil
}

func (s *quizService) SubmitAnswer(ctx context.Context, studentID string, categoryID uint, req *SubmitAnswerRequest) (*AnswerResponse, error) {
	session, err := s.live(studentID, categoryID)
	if err != nil {
		return nil, err
	}

	answer, recorded, err := session.SubmitAnswer(ctx, req.QuestionID, req.Answer)
	switch {
	case err == nil:
	case errors.Is(err, ErrQuizModeDisabled):
		s.CloseSession(ctx, studentID, categoryID)
		return nil, err
	case recorded && IsUnavailable(err):
		// Kept in memory; the client retries through RetrySync.
		s.slog.Warn("Answer not synced", "student_id", studentID, "category_id", categoryID, "question_id", req.QuestionID)
	default:
		return nil, err
	}

	return &AnswerResponse{
		Answer:   answer,
		Recorded: recorded,
		Synced:   err == nil,
		Snapshot: session.Snapshot(),
	}, nil
}

func (s *quizService) Next(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error) {
	session, err := s.live(studentID, categoryID)
	if err != nil {
		return nil, err
	}
	snap, err := session.Next(ctx)
	if err != nil {
		return nil, err
	}
	s.dropIfSettled(session)
	return &snap, nil
}

func (s *quizService) Previous(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error) {
	session, err := s.live(studentID, categoryID)
	if err != nil {
		return nil, err
	}
	snap, err := session.Previous()
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *quizService) Pause(ctx context.Context, studentID string, categoryID uint) (snap *quiz.Snapshot, err error) {
	op := s.logger.WithOperation(ctx, "pause_quiz", studentID)
	defer func() { op.LogResult(pairID(studentID, categoryID), "quiz", err) }()

	session, err := s.live(studentID, categoryID)
	if err != nil {
		return nil, err
	}
	paused, err := session.Pause(ctx)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveQuizEvent("paused")
	s.events.emit(ctx, events.NewEvent(events.EventQuizPaused, studentID, events.QuizPausedEvent{
		StudentID:    studentID,
		CategoryID:   categoryID,
		QuizProgress: paused.CurrentIndex + 1,
	}))
	return &paused, nil
}

func (s *quizService) Resume(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error) {
	session, err := s.live(studentID, categoryID)
	if err != nil {
		return nil, err
	}
	snap, err := session.Resume()
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Complete always returns the computed result when the session could be
// completed; result.Synced is false when the store did not take it.
func (s *quizService) Complete(ctx context.Context, studentID string, categoryID uint) (result *quiz.Result, err error) {
	op := s.logger.WithOperation(ctx, "complete_quiz", studentID)
	defer func() { op.LogResult(pairID(studentID, categoryID), "quiz", err) }()

	session, err := s.live(studentID, categoryID)
	if err != nil {
		return nil, err
	}
	result, err = session.Complete(ctx)
	if err != nil {
		return nil, err
	}
	s.dropIfSettled(session)
	return result, nil
}

func (s *quizService) RetrySync(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error) {
	session, err := s.live(studentID, categoryID)
	if err != nil {
		return nil, err
	}
	snap, err := session.RetrySync(ctx)
	if err != nil {
		return &snap, err
	}
	s.dropIfSettled(session)
	return &snap, nil
}

// Abandon ends the live session and clears the resume marker. Without a
// live session only the marker is cleared.
func (s *quizService) Abandon(ctx context.Context, studentID string, categoryID uint) (err error) {
	op := s.logger.WithOperation(ctx, "abandon_quiz", studentID)
	defer func() { op.LogResult(pairID(studentID, categoryID), "quiz", err) }()

	session, liveErr := s.live(studentID, categoryID)
	if liveErr != nil {
		if err := s.repo.Assignment().SetProgress(ctx, nil, studentID, categoryID, nil); err != nil {
			return storeError(err, ErrAssignmentNotFound, "clear progress")
		}
		return nil
	}

	if err := session.Abandon(ctx); err != nil {
		return err
	}
	s.drop(session)
	s.metrics.ObserveQuizEvent("abandoned")
	return nil
}

// CloseSession ends the pair's live session. Unsynced answers and the resume
// position are saved if the store allows it.
func (s *quizService) CloseSession(ctx context.Context, studentID string, categoryID uint) {
	session := s.lookup(studentID, categoryID)
	if session == nil {
		return
	}
	if err := session.Close(ctx); err != nil {
		s.slog.Warn("Quiz session closed with unsynced state",
			"student_id", studentID, "category_id", categoryID, "error", err)
	}
	s.drop(session)
	s.slog.Info("Quiz session closed", "student_id", studentID, "category_id", categoryID)
}

func (s *quizService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	sessions := make([]*quiz.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.sessions = make(map[sessionKey]*quiz.Session)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(0)

	var errs []error
	for _, session := range sessions {
		if err := session.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		s.slog.Error("Quiz sessions closed with unsynced answers", "sessions", len(errs))
	}
	return errors.Join(errs...)
}

func (s *quizService) dropIfSettled(session *quiz.Session) {
	if session.Settled() {
		s.drop(session)
	}
}

// ===== RESULTS =====

func (s *quizService) AttemptStats(ctx context.Context, studentID string, categoryID uint) (*models.QuizAttemptStats, error) {
	assignment, err := s.repo.Assignment().Get(ctx, nil, studentID, categoryID)
	if err != nil {
		return nil, storeError(err, ErrAssignmentNotFound, "load assignment")
	}
	questions, answers, err := s.loadAttempt(ctx, studentID, categoryID)
	if err != nil {
		return nil, err
	}
	stats := storedStats(questions, answers, assignment.CompletedAt)
	return &stats, nil
}

// Results is the post-completion view. In quiz mode it is a summary only; in
// study mode every question is shown with its correct answer, and with its
// explanation once published.
func (s *quizService) Results(ctx context.Context, studentID string, categoryID uint) (*ResultsView, error) {
	assignment, err := s.repo.Assignment().GetWithCategory(ctx, nil, studentID, categoryID)
	if err != nil {
		return nil, storeError(err, ErrAssignmentNotFound, "load assignment")
	}
	questions, answers, err := s.loadAttempt(ctx, studentID, categoryID)
	if err != nil {
		return nil, err
	}

	view := &ResultsView{
		CategoryID: categoryID,
		Mode:       assignment.Mode,
		Published:  assignment.Published,
		Completed:  assignment.IsCompleted(),
		Stats:      storedStats(questions, answers, assignment.CompletedAt),
	}
	if assignment.Category != nil {
		view.CategoryName = assignment.Category.Name
	}

	// A completed attempt whose writes are still pending reports the stats
	// the engine computed.
	if session := s.lookup(studentID, categoryID); session != nil {
		if snap := session.Snapshot(); snap.Result != nil && !snap.Result.Synced {
			view.Completed = true
			view.Stats = snap.Result.Stats
		}
	}

	if assignment.Mode {
		return view, nil
	}

	view.Questions = make([]QuestionResult, 0, len(questions))
	for _, question := range questions {
		view.Questions = append(view.Questions, questionResult(question, answers[question.ID], assignment.Published))
	}

	bundle, err := loadExplanation(ctx, s.repo, studentID, categoryID)
	switch {
	case err == nil:
		view.Explanation = bundle
	case errors.Is(err, ErrExplanationNotFound):
	default:
		s.slog.Warn("Results served without explanation bundle",
			"student_id", studentID, "category_id", categoryID, "error", err)
	}
	return view, nil
}

func (s *quizService) loadAttempt(ctx context.Context, studentID string, categoryID uint) ([]*models.Question, map[uint]*models.StudentAnswer, error) {
	questions, err := s.repo.Question().GetByCategory(ctx, nil, categoryID)
	if err != nil {
		return nil, nil, storeError(err, nil, "load questions")
	}
	answers, err := s.repo.Answer().GetByStudentAndCategory(ctx, nil, studentID, categoryID)
	if err != nil {
		return nil, nil, storeError(err, nil, "load answers")
	}
	return questions, regradeLegacy(questions, quiz.AnswerMap(answers)), nil
}

// regradeLegacy grades answers stored without a verdict, such as rows that
// hold option text or an index instead of an option key. The stored rows are
// left untouched.
func regradeLegacy(questions []*models.Question, answers map[uint]*models.StudentAnswer) map[uint]*models.StudentAnswer {
	for _, question := range questions {
		answer := answers[question.ID]
		if answer == nil || answer.IsCorrect != nil {
			continue
		}
		graded := *answer
		graded.IsCorrect = quiz.Grade(question, answer.Answer)
		if key, ok := question.ResolveOptionKey(answer.Answer); ok && !answer.IsTimeout() {
			graded.Answer = key
		}
		answers[question.ID] = &graded
	}
	return answers
}

// storedStats derives attempt stats from persisted rows. Wall-clock duration
// is not stored, so total time is the sum of per-question time spent.
func storedStats(questions []*models.Question, answers map[uint]*models.StudentAnswer, completedAt *time.Time) models.QuizAttemptStats {
	var finished time.Time
	if completedAt != nil {
		finished = *completedAt
	}
	stats := quiz.ComputeStats(questions, answers, time.Time{}, finished)

	seconds := 0
	for _, question := range questions {
		if answer := answers[question.ID]; answer != nil && answer.TimeSpent != nil {
			seconds += *answer.TimeSpent
		}
	}
	stats.TotalTimeMinutes = (seconds + 30) / 60
	return stats
}

func questionResult(question *models.Question, answer *models.StudentAnswer, published bool) QuestionResult {
	view := quiz.NewQuestionView(question, nil)
	result := QuestionResult{
		QuestionID:    question.ID,
		Type:          question.Type,
		Question:      question.QuestionText,
		Options:       view.Options,
		ImageURL:      question.ImageURL,
		CorrectAnswer: question.CorrectKey(),
	}
	if question.Type.HasOptions() {
		result.CorrectAnswerText = question.OptionText(result.CorrectAnswer)
	}
	if published {
		result.Explanation = question.Explanation
	}
	if answer == nil {
		return result
	}

	value := answer.Answer
	result.Answer = &value
	result.IsCorrect = answer.IsCorrect
	result.TimedOut = answer.IsTimeout()
	result.TimeSpent = answer.TimeSpent
	if question.Type.HasOptions() && !answer.IsTimeout() {
		result.AnswerText = question.OptionText(answer.Answer)
	}
	return result
}

// ===== ENGINE HOOKS =====

func (s *quizService) onTimeout(studentID string, categoryID, questionID uint) {
	s.metrics.ObserveQuizEvent("timed_out")
	s.events.emit(context.Background(), events.NewEvent(events.EventQuestionTimedOut, studentID, events.QuestionTimedOutEvent{
		StudentID:  studentID,
		CategoryID: categoryID,
		QuestionID: questionID,
	}))
}

func (s *quizService) onCompleted(result quiz.Result) {
	s.metrics.ObserveQuizEvent("completed")
	s.metrics.ObserveCompletion(result.Stats.AccuracyPercent)
	s.events.emit(context.Background(), events.NewEvent(events.EventQuizCompleted, result.StudentID, events.QuizCompletedEvent{
		StudentID:  result.StudentID,
		CategoryID: result.CategoryID,
		Stats:      result.Stats,
		Synced:     result.Synced,
	}))

	if !result.Synced {
		return
	}
	if err := s.cache.Delete(context.Background(), cache.OverviewKey(result.StudentID)); err != nil {
		s.slog.Warn("Failed to invalidate student overview", "student_id", result.StudentID, "error", err)
	}
	// Timer-driven completions have no request left to release the session.
	if session := s.lookup(result.StudentID, result.CategoryID); session != nil {
		s.dropIfSettled(session)
	}
}

// ===== ENGINE STORE =====

// sessionStore persists one session's writes. Answers are only accepted
// while the assignment is in quiz mode.
type sessionStore struct {
	repo       repositories.Repository
	metrics    *monitoring.Metrics
	studentID  string
	categoryID uint
}

func (s *quizService) storeFor(studentID string, categoryID uint) *sessionStore {
	return &sessionStore{repo: s.repo, metrics: s.metrics, studentID: studentID, categoryID: categoryID}
}

func (st *sessionStore) fail(operation string, err error, notFound error) error {
	classified := storeError(err, notFound, operation)
	if IsUnavailable(classified) {
		st.metrics.ObservePersistenceFailure(operation)
	}
	return classified
}

func (st *sessionStore) SaveAnswer(ctx context.Context, answer *models.StudentAnswer) (*models.StudentAnswer, error) {
	assignment, err := st.repo.Assignment().Get(ctx, nil, st.studentID, st.categoryID)
	if err != nil {
		return nil, st.fail("save_answer", err, ErrAssignmentNotFound)
	}
	if !assignment.Mode {
		return nil, ErrQuizModeDisabled
	}

	row := *answer
	created, err := st.repo.Answer().CreateIfAbsent(ctx, nil, &row)
	if err != nil {
		return nil, st.fail("save_answer", err, nil)
	}
	if created {
		return &row, nil
	}

	stored, err := st.repo.Answer().Get(ctx, nil, answer.StudentID, answer.QuestionID)
	if err != nil {
		return nil, st.fail("save_answer", err, nil)
	}
	return stored, nil
}

func (st *sessionStore) SaveProgress(ctx context.Context, studentID string, categoryID uint, progress int) error {
	if err := st.repo.Assignment().SetProgress(ctx, nil, studentID, categoryID, &progress); err != nil {
		return st.fail("save_progress", err, ErrAssignmentNotFound)
	}
	return nil
}

func (st *sessionStore) ClearProgress(ctx context.Context, studentID string, categoryID uint) error {
	if err := st.repo.Assignment().SetProgress(ctx, nil, studentID, categoryID, nil); err != nil {
		return st.fail("clear_progress", err, ErrAssignmentNotFound)
	}
	return nil
}

func (st *sessionStore) MarkCompleted(ctx context.Context, studentID string, categoryID uint, completedAt time.Time) error {
	if err := st.repo.Assignment().MarkCompleted(ctx, nil, studentID, categoryID, completedAt); err != nil {
		return st.fail("mark_completed", err, ErrAssignmentNotFound)
	}
	return nil
}
