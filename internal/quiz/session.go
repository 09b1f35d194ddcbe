package quiz

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
)

// Store is the persistence a session needs. Implementations must make
// SaveAnswer insert-once per (student, question) and return the row as
// stored, which may be an earlier answer for the same question.
type Store interface {
	SaveAnswer(ctx context.Context, answer *models.StudentAnswer) (*models.StudentAnswer, error)
	SaveProgress(ctx context.Context, studentID string, categoryID uint, progress int) error
	// ClearProgress drops the resume marker of an abandoned attempt.
	ClearProgress(ctx context.Context, studentID string, categoryID uint) error
	// MarkCompleted drops the resume marker and records the completion time.
	MarkCompleted(ctx context.Context, studentID string, categoryID uint, completedAt time.Time) error
}

// Hooks are invoked outside the session lock.
type Hooks struct {
	OnTimeout   func(studentID string, categoryID, questionID uint)
	OnCompleted func(result Result)
}

type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithHooks(hooks Hooks) Option {
	return func(s *Session) {
		s.hooks = hooks
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Session runs one student's attempt at one category. All methods are safe
// for concurrent use; operations on a session are serialized, including the
// store calls they make.
type Session struct {
	cfg    Config
	store  Store
	hooks  Hooks
	logger *slog.Logger
	now    func() time.Time

	studentID  string
	categoryID uint
	questions  []*models.Question

	mu              sync.Mutex
	state           State
	closed          bool
	index           int
	answers         map[uint]*models.StudentAnswer
	pending         map[uint]bool
	remaining       map[uint]int
	spent           map[uint]time.Duration
	startedAt       time.Time
	questionSince   time.Time
	completedAt     time.Time
	progressCleared bool
	result          *Result

	// timerGen identifies the live countdown. Every start or stop bumps it so
	// ticks and delayed advances from an older countdown become no-ops.
	timerGen  uint64
	timerStop chan struct{}
}

// NewSession builds a session over the ordered question list. Answers that
// already exist for these questions are treated as persisted.
func NewSession(cfg Config, store Store, studentID string, categoryID uint, questions []*models.Question, existing []*models.StudentAnswer, opts ...Option) *Session {
	s := &Session{
		cfg:        cfg.withDefaults(),
		store:      store,
		logger:     slog.Default(),
		now:        time.Now,
		studentID:  studentID,
		categoryID: categoryID,
		questions:  questions,
		state:      StateNotStarted,
		answers:    make(map[uint]*models.StudentAnswer),
		pending:    make(map[uint]bool),
		remaining:  make(map[uint]int),
		spent:      make(map[uint]time.Duration),
	}
	for _, opt := range opts {
		opt(s)
	}

	known := make(map[uint]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}
	for _, answer := range existing {
		if answer != nil && known[answer.QuestionID] {
			s.answers[answer.QuestionID] = answer
		}
	}
	return s
}

func (s *Session) StudentID() string { return s.studentID }
func (s *Session) CategoryID() uint  { return s.categoryID }

// Start enters InProgress at startIndex, clamped to the question range.
func (s *Session) Start(startIndex int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.snapshotLocked(), ErrClosed
	}
	if s.state != StateNotStarted {
		return s.snapshotLocked(), ErrAlreadyStarted
	}

	if startIndex < 0 || len(s.questions) == 0 {
		startIndex = 0
	} else if startIndex > len(s.questions)-1 {
		startIndex = len(s.questions) - 1
	}

	s.index = startIndex
	s.state = StateInProgress
	s.startedAt = s.now()
	s.enterQuestionLocked()

	s.logger.Info("Quiz session started",
		"student_id", s.studentID, "category_id", s.categoryID,
		"start_index", startIndex, "total_questions", len(s.questions))
	return s.snapshotLocked(), nil
}

// SubmitAnswer records the answer for the current question and stops its
// countdown. A repeat submission for an answered question returns the
// existing answer with recorded=false and leaves the timer untouched. When
// the store fails the answer is kept in memory as unsynced and the store
// error is returned.
func (s *Session) SubmitAnswer(ctx context.Context, questionID uint, raw string) (answer *models.StudentAnswer, recorded bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked(); err != nil {
		return nil, false, err
	}
	question := s.currentLocked()
	if question == nil {
		return nil, false, ErrNoQuestions
	}
	if question.ID != questionID {
		return nil, false, ErrNotCurrentQuestion
	}
	if existing := s.answers[question.ID]; existing != nil {
		return existing, false, nil
	}

	value, correct, err := Evaluate(question, raw)
	if err != nil {
		return nil, false, err
	}

	s.stopTimerLocked()
	answer = &models.StudentAnswer{
		StudentID:  s.studentID,
		QuestionID: question.ID,
		Answer:     value,
		IsCorrect:  correct,
		AnsweredAt: s.now(),
		TimeSpent:  s.timeSpentLocked(question),
	}
	stored, err := s.recordLocked(ctx, question, answer)
	return stored, true, err
}

// Next moves forward; on the last question it completes the attempt.
func (s *Session) Next(ctx context.Context) (Snapshot, error) {
	var completed *Result
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.notifyCompleted(completed)
	}()

	if err := s.requireActiveLocked(); err != nil {
		return s.snapshotLocked(), err
	}

	if len(s.questions) == 0 || s.index >= len(s.questions)-1 {
		completed = s.completeLocked(ctx)
		return s.snapshotLocked(), nil
	}

	s.stopTimerLocked()
	s.leaveQuestionLocked()
	s.index++
	s.enterQuestionLocked()
	return s.snapshotLocked(), nil
}

// Previous moves back one question; at the first question it is a no-op.
func (s *Session) Previous() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked(); err != nil {
		return s.snapshotLocked(), err
	}
	if s.index == 0 {
		return s.snapshotLocked(), nil
	}

	s.stopTimerLocked()
	s.leaveQuestionLocked()
	s.index--
	s.enterQuestionLocked()
	return s.snapshotLocked(), nil
}

// Pause persists the 1-based resume position and stops the countdown. If the
// position cannot be persisted the session stays in progress, the countdown
// continues and the store error is returned.
func (s *Session) Pause(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked(); err != nil {
		return s.snapshotLocked(), err
	}
	if len(s.questions) == 0 {
		return s.snapshotLocked(), ErrNoQuestions
	}

	s.stopTimerLocked()
	progress := s.index + 1
	if err := s.store.SaveProgress(ctx, s.studentID, s.categoryID, progress); err != nil {
		s.startTimerLocked()
		s.logger.Error("Failed to persist quiz progress",
			"student_id", s.studentID, "category_id", s.categoryID, "progress", progress, "error", err)
		return s.snapshotLocked(), err
	}

	s.leaveQuestionLocked()
	s.state = StatePaused
	s.progressCleared = false
	return s.snapshotLocked(), nil
}

// Resume continues a paused session at the same question with the time that
// was left on its countdown.
func (s *Session) Resume() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.snapshotLocked(), ErrClosed
	}
	if s.state != StatePaused {
		return s.snapshotLocked(), ErrNotPaused
	}

	s.state = StateInProgress
	s.enterQuestionLocked()
	return s.snapshotLocked(), nil
}

// Complete finishes the attempt. The returned result always carries the
// computed stats; Synced reports whether answers and the progress reset
// reached the store. Completing twice returns the first result.
func (s *Session) Complete(ctx context.Context) (*Result, error) {
	var completed *Result
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.notifyCompleted(completed)
	}()

	if s.closed {
		return nil, ErrClosed
	}
	switch s.state {
	case StateNotStarted:
		return nil, ErrNotStarted
	case StateCompleted:
		return s.resultCopyLocked(), nil
	}

	completed = s.completeLocked(ctx)
	return s.resultCopyLocked(), nil
}

// RetrySync re-attempts every store write that previously failed.
func (s *Session) RetrySync(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.snapshotLocked(), ErrClosed
	}
	if s.state == StateNotStarted {
		return s.snapshotLocked(), ErrNotStarted
	}
	err := s.syncLocked(ctx)
	return s.snapshotLocked(), err
}

// Abandon ends the attempt without completing it: pending answers are
// flushed and the resume marker is cleared. The session is closed on success.
func (s *Session) Abandon(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.stopTimerLocked()
	if err := s.flushLocked(ctx); err != nil {
		s.startTimerIfActiveLocked()
		return err
	}
	if err := s.store.ClearProgress(ctx, s.studentID, s.categoryID); err != nil {
		s.startTimerIfActiveLocked()
		return err
	}
	s.progressCleared = true
	s.closed = true
	return nil
}

// Close stops the session. Pending answers are flushed and an unfinished
// attempt saves its resume position, both best-effort; any error is returned
// but the session is closed regardless.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.stopTimerLocked()
	s.closed = true

	var errs []error
	if err := s.flushLocked(ctx); err != nil {
		s.logger.Warn("Closing quiz session with unsynced answers",
			"student_id", s.studentID, "category_id", s.categoryID,
			"unsynced", len(s.pending), "error", err)
		errs = append(errs, err)
	}
	// An attempt cut off mid-way keeps its resume position.
	if (s.state == StateInProgress || s.state == StatePaused) && len(s.questions) > 0 {
		progress := s.index + 1
		if err := s.store.SaveProgress(ctx, s.studentID, s.categoryID, progress); err != nil {
			s.logger.Warn("Closing quiz session without resume position",
				"student_id", s.studentID, "category_id", s.categoryID, "progress", progress, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Closed reports whether the session was abandoned or closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Settled reports whether the session is completed with nothing left to sync.
func (s *Session) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateCompleted && len(s.pending) == 0 && s.progressCleared
}

// ===== INTERNALS (caller holds s.mu) =====

func (s *Session) requireActiveLocked() error {
	if s.closed {
		return ErrClosed
	}
	switch s.state {
	case StateNotStarted:
		return ErrNotStarted
	case StatePaused:
		return ErrPaused
	case StateCompleted:
		return ErrCompleted
	}
	return nil
}

func (s *Session) currentLocked() *models.Question {
	if s.index < 0 || s.index >= len(s.questions) {
		return nil
	}
	return s.questions[s.index]
}

func (s *Session) enterQuestionLocked() {
	s.questionSince = s.now()
	s.startTimerLocked()
}

func (s *Session) leaveQuestionLocked() {
	if question := s.currentLocked(); question != nil && !s.questionSince.IsZero() {
		s.spent[question.ID] += s.now().Sub(s.questionSince)
	}
	s.questionSince = time.Time{}
}

func (s *Session) timeSpentLocked(question *models.Question) *int {
	spent := s.spent[question.ID]
	if !s.questionSince.IsZero() {
		spent += s.now().Sub(s.questionSince)
	}
	seconds := int(spent.Round(time.Second) / time.Second)
	return &seconds
}

// recordLocked keeps the answer in memory first so a store failure never
// loses it, then persists it.
func (s *Session) recordLocked(ctx context.Context, question *models.Question, answer *models.StudentAnswer) (*models.StudentAnswer, error) {
	s.answers[question.ID] = answer
	s.pending[question.ID] = true

	stored, err := s.store.SaveAnswer(ctx, answer)
	if err != nil {
		s.logger.Warn("Answer kept locally, store unavailable",
			"student_id", s.studentID, "question_id", question.ID, "error", err)
		return answer, err
	}

	delete(s.pending, question.ID)
	if stored != nil {
		s.answers[question.ID] = stored
	}
	return s.answers[question.ID], nil
}

func (s *Session) flushLocked(ctx context.Context) error {
	for _, question := range s.questions {
		if !s.pending[question.ID] {
			continue
		}
		stored, err := s.store.SaveAnswer(ctx, s.answers[question.ID])
		if err != nil {
			return err
		}
		delete(s.pending, question.ID)
		if stored != nil {
			s.answers[question.ID] = stored
		}
	}
	return nil
}

// syncLocked flushes pending answers and, for a completed attempt, clears
// the resume marker only once every answer is stored.
func (s *Session) syncLocked(ctx context.Context) error {
	err := s.flushLocked(ctx)
	if err == nil && s.state == StateCompleted && !s.progressCleared {
		if err = s.store.MarkCompleted(ctx, s.studentID, s.categoryID, s.completedAt); err == nil {
			s.progressCleared = true
		}
	}

	if s.result != nil {
		s.result.Stats = ComputeStats(s.questions, s.answers, s.startedAt, s.completedAt)
		s.result.Synced = err == nil
		s.result.SyncError = ""
		if err != nil {
			s.result.SyncError = err.Error()
		}
	}
	return err
}

func (s *Session) completeLocked(ctx context.Context) *Result {
	s.stopTimerLocked()
	if s.state == StateInProgress {
		s.leaveQuestionLocked()
	}
	s.state = StateCompleted
	s.completedAt = s.now()
	s.result = &Result{StudentID: s.studentID, CategoryID: s.categoryID}

	if err := s.syncLocked(ctx); err != nil {
		s.logger.Error("Quiz completed without persisting",
			"student_id", s.studentID, "category_id", s.categoryID,
			"unsynced", len(s.pending), "error", err)
	} else {
		s.logger.Info("Quiz completed",
			"student_id", s.studentID, "category_id", s.categoryID,
			"accuracy", s.result.Stats.AccuracyPercent)
	}
	return s.resultCopyLocked()
}

func (s *Session) resultCopyLocked() *Result {
	if s.result == nil {
		return nil
	}
	result := *s.result
	return &result
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		StudentID:       s.studentID,
		CategoryID:      s.categoryID,
		State:           s.state,
		CurrentIndex:    s.index,
		TotalQuestions:  len(s.questions),
		Answered:        make(map[uint]bool, len(s.answers)),
		UnsyncedAnswers: len(s.pending),
		StartedAt:       s.startedAt,
		Result:          s.resultCopyLocked(),
	}
	for id := range s.answers {
		snap.Answered[id] = true
	}
	snap.AnsweredCount = len(snap.Answered)

	if question := s.currentLocked(); question != nil && s.state != StateCompleted {
		answer := s.answers[question.ID]
		snap.Current = NewQuestionView(question, answer)
		if limit := question.TimeLimitSeconds(); limit > 0 && answer == nil {
			remaining, ok := s.remaining[question.ID]
			if !ok {
				remaining = limit
			}
			snap.RemainingSeconds = &remaining
		}
	}
	return snap
}

func (s *Session) notifyCompleted(result *Result) {
	if result != nil && s.hooks.OnCompleted != nil {
		s.hooks.OnCompleted(*result)
	}
}
