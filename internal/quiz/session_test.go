package quiz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store down")

// fakeStore is an in-memory Store with insert-once answers and switchable
// failures.
type fakeStore struct {
	mu           sync.Mutex
	answers      map[uint]*models.StudentAnswer
	inserts      int
	progress     *int
	progressSets []int
	clears       int
	completedAt  *time.Time

	failAnswers  bool
	failProgress bool
	failClear    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{answers: make(map[uint]*models.StudentAnswer)}
}

func (f *fakeStore) SaveAnswer(_ context.Context, answer *models.StudentAnswer) (*models.StudentAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAnswers {
		return nil, errStoreDown
	}
	if existing, ok := f.answers[answer.QuestionID]; ok {
		return existing, nil
	}
	stored := *answer
	f.answers[answer.QuestionID] = &stored
	f.inserts++
	return &stored, nil
}

func (f *fakeStore) SaveProgress(_ context.Context, _ string, _ uint, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failProgress {
		return errStoreDown
	}
	f.progress = &progress
	f.progressSets = append(f.progressSets, progress)
	return nil
}

func (f *fakeStore) ClearProgress(_ context.Context, _ string, _ uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClear {
		return errStoreDown
	}
	f.progress = nil
	f.clears++
	return nil
}

func (f *fakeStore) MarkCompleted(ctx context.Context, studentID string, categoryID uint, completedAt time.Time) error {
	if err := f.ClearProgress(ctx, studentID, categoryID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedAt = &completedAt
	return nil
}

func (f *fakeStore) answer(questionID uint) *models.StudentAnswer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answers[questionID]
}

func (f *fakeStore) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts
}

func (f *fakeStore) currentProgress() *int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress
}

func (f *fakeStore) completion() *time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completedAt
}

func (f *fakeStore) setFailures(answers, progress, clear bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAnswers, f.failProgress, f.failClear = answers, progress, clear
}

func fastConfig() Config {
	return Config{
		TickInterval:   5 * time.Millisecond,
		AdvanceDelay:   20 * time.Millisecond,
		PersistTimeout: time.Second,
	}
}

func buildQuestions(t *testing.T, n int, timeLimit int) []*models.Question {
	t.Helper()
	questions := make([]*models.Question, 0, n)
	for i := 0; i < n; i++ {
		q := choiceQuestion(t, uint(i+1), "A", "Pads", "Rotors", "Drums")
		if timeLimit > 0 {
			limit := timeLimit
			q.TimeLimit = &limit
		}
		questions = append(questions, q)
	}
	return questions
}

func TestSession_CompleteComputesStats(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	questions := buildQuestions(t, 3, 0)
	s := NewSession(fastConfig(), store, "student-1", 1, questions, nil)

	_, err := s.Start(0)
	require.NoError(t, err)

	for i, choice := range []string{"A", "B", "A"} {
		_, recorded, err := s.SubmitAnswer(ctx, questions[i].ID, choice)
		require.NoError(t, err)
		assert.True(t, recorded)
		if i < 2 {
			_, err = s.Next(ctx)
			require.NoError(t, err)
		}
	}

	result, err := s.Complete(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Synced)
	assert.Equal(t, 3, result.Stats.TotalQuestions)
	assert.Equal(t, 2, result.Stats.CorrectAnswers)
	assert.Equal(t, 1, result.Stats.IncorrectAnswers)
	assert.Equal(t, 67, result.Stats.AccuracyPercent)
	assert.Equal(t, StateCompleted, s.State())
	assert.Nil(t, store.currentProgress())
	assert.NotNil(t, store.completion())
	assert.True(t, s.Settled())

	again, err := s.Complete(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.Stats, again.Stats)
}

func TestSession_NextOnLastQuestionCompletes(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	questions := buildQuestions(t, 2, 0)

	var completions int32
	s := NewSession(fastConfig(), store, "student-1", 1, questions, nil,
		WithHooks(Hooks{OnCompleted: func(Result) { atomic.AddInt32(&completions, 1) }}))
	_, err := s.Start(1)
	require.NoError(t, err)

	snap, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, snap.State)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 2, snap.Result.Stats.Unanswered)
	assert.Equal(t, int32(1), atomic.LoadInt32(&completions))
}

func TestSession_EmptyCategory(t *testing.T) {
	ctx := context.Background()
	s := NewSession(fastConfig(), newFakeStore(), "student-1", 9, nil, nil)

	snap, err := s.Start(0)
	require.NoError(t, err)
	assert.Nil(t, snap.Current)

	_, err = s.Pause(ctx)
	assert.ErrorIs(t, err, ErrNoQuestions)

	result, err := s.Complete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Stats.TotalQuestions)
	assert.Equal(t, 0, result.Stats.AccuracyPercent)
}

func TestSession_RepeatSubmissionIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	questions := buildQuestions(t, 2, 0)
	s := NewSession(fastConfig(), store, "student-1", 1, questions, nil)
	_, err := s.Start(0)
	require.NoError(t, err)

	first, recorded, err := s.SubmitAnswer(ctx, 1, "A")
	require.NoError(t, err)
	assert.True(t, recorded)

	second, recorded, err := s.SubmitAnswer(ctx, 1, "B")
	require.NoError(t, err)
	assert.False(t, recorded)
	assert.Equal(t, "A", second.Answer)
	assert.Equal(t, first.AnsweredAt, second.AnsweredAt)
	assert.Equal(t, 1, store.insertCount())
	assert.Equal(t, "A", store.answer(1).Answer)
}

func TestSession_AdoptsPreviouslyStoredAnswer(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	no := false
	store.answers[1] = &models.StudentAnswer{StudentID: "student-1", QuestionID: 1, Answer: "C", IsCorrect: &no}

	s := NewSession(fastConfig(), store, "student-1", 1, buildQuestions(t, 1, 0), nil)
	_, err := s.Start(0)
	require.NoError(t, err)

	answer, recorded, err := s.SubmitAnswer(ctx, 1, "A")
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, "C", answer.Answer)

	result, err := s.Complete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Stats.CorrectAnswers)
}

func TestSession_SubmitGuards(t *testing.T) {
	ctx := context.Background()
	questions := buildQuestions(t, 3, 0)
	s := NewSession(fastConfig(), newFakeStore(), "student-1", 1, questions, nil)

	_, _, err := s.SubmitAnswer(ctx, 1, "A")
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = s.Start(0)
	require.NoError(t, err)

	_, _, err = s.SubmitAnswer(ctx, 2, "A")
	assert.ErrorIs(t, err, ErrNotCurrentQuestion)

	_, _, err = s.SubmitAnswer(ctx, 1, "Z")
	assert.ErrorIs(t, err, ErrInvalidAnswer)

	_, err = s.Pause(ctx)
	require.NoError(t, err)
	_, _, err = s.SubmitAnswer(ctx, 1, "A")
	assert.ErrorIs(t, err, ErrPaused)

	_, err = s.Resume()
	require.NoError(t, err)
	_, err = s.Complete(ctx)
	require.NoError(t, err)
	_, _, err = s.SubmitAnswer(ctx, 1, "A")
	assert.ErrorIs(t, err, ErrCompleted)

	_, err = s.Start(0)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestSession_PauseResumeKeepsIndex(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	questions := buildQuestions(t, 5, 0)
	s := NewSession(fastConfig(), store, "student-1", 1, questions, nil)
	_, err := s.Start(0)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = s.Next(ctx)
		require.NoError(t, err)
	}

	snap, err := s.Pause(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatePaused, snap.State)
	require.NotNil(t, store.currentProgress())
	assert.Equal(t, 3, *store.currentProgress())

	snap, err = s.Resume()
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, snap.State)
	assert.Equal(t, 2, snap.CurrentIndex)

	_, err = s.Resume()
	assert.ErrorIs(t, err, ErrNotPaused)

	// A new session resumes at the persisted position.
	resumed := NewSession(fastConfig(), store, "student-1", 1, questions, nil)
	snap, err = resumed.Start(*store.currentProgress() - 1)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CurrentIndex)
	assert.Equal(t, uint(3), snap.Current.ID)
}

func TestSession_PauseFailureStaysInProgress(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.setFailures(false, true, false)
	questions := buildQuestions(t, 2, 50)
	s := NewSession(fastConfig(), store, "student-1", 1, questions, nil)
	_, err := s.Start(0)
	require.NoError(t, err)

	snap, err := s.Pause(ctx)
	require.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, StateInProgress, snap.State)
	assert.Nil(t, store.currentProgress())

	// The countdown keeps running after the failed pause.
	assert.Eventually(t, func() bool {
		remaining := s.Snapshot().RemainingSeconds
		return remaining != nil && *remaining < 50
	}, time.Second, 5*time.Millisecond)
}

func TestSession_PausePreservesRemainingTime(t *testing.T) {
	ctx := context.Background()
	questions := buildQuestions(t, 1, 200)
	s := NewSession(fastConfig(), newFakeStore(), "student-1", 1, questions, nil)
	_, err := s.Start(0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		remaining := s.Snapshot().RemainingSeconds
		return remaining != nil && *remaining <= 195
	}, time.Second, 5*time.Millisecond)

	paused, err := s.Pause(ctx)
	require.NoError(t, err)
	require.NotNil(t, paused.RemainingSeconds)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, *paused.RemainingSeconds, *s.Snapshot().RemainingSeconds)

	resumed, err := s.Resume()
	require.NoError(t, err)
	require.NotNil(t, resumed.RemainingSeconds)
	assert.Equal(t, *paused.RemainingSeconds, *resumed.RemainingSeconds)
}

func TestSession_TimeoutRecordsAndAdvances(t *testing.T) {
	store := newFakeStore()
	questions := buildQuestions(t, 2, 2)
	questions[1].TimeLimit = nil

	var timeouts int32
	s := NewSession(fastConfig(), store, "student-1", 1, questions, nil,
		WithHooks(Hooks{OnTimeout: func(string, uint, uint) { atomic.AddInt32(&timeouts, 1) }}))
	_, err := s.Start(0)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return s.Snapshot().CurrentIndex == 1
	}, time.Second, 5*time.Millisecond)

	answer := store.answer(1)
	require.NotNil(t, answer)
	assert.Equal(t, models.AnswerTimeout, answer.Answer)
	require.NotNil(t, answer.IsCorrect)
	assert.False(t, *answer.IsCorrect)
	assert.Equal(t, int32(1), atomic.LoadInt32(&timeouts))

	// A late manual submission for the timed-out question creates nothing.
	_, err = s.Previous()
	require.NoError(t, err)
	_, recorded, err := s.SubmitAnswer(context.Background(), 1, "A")
	require.NoError(t, err)
	assert.False(t, recorded)
	assert.Equal(t, models.AnswerTimeout, store.answer(1).Answer)
}

func TestSession_TimeoutOnLastQuestionCompletes(t *testing.T) {
	store := newFakeStore()
	questions := buildQuestions(t, 1, 1)
	s := NewSession(fastConfig(), store, "student-1", 1, questions, nil)
	_, err := s.Start(0)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return s.State() == StateCompleted
	}, time.Second, 5*time.Millisecond)

	snap := s.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, 1, snap.Result.Stats.TimedOut)
	assert.Equal(t, 1, snap.Result.Stats.IncorrectAnswers)
	assert.Equal(t, 1, store.insertCount())
	assert.Nil(t, store.currentProgress())
}

func TestSession_NavigationCancelsAutoAdvance(t *testing.T) {
	store := newFakeStore()
	questions := buildQuestions(t, 3, 0)
	limit := 1
	questions[1].TimeLimit = &limit

	cfg := fastConfig()
	cfg.AdvanceDelay = 150 * time.Millisecond
	s := NewSession(cfg, store, "student-1", 1, questions, nil)
	_, err := s.Start(1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.answer(2) != nil
	}, time.Second, 2*time.Millisecond)

	snap, err := s.Previous()
	require.NoError(t, err)
	assert.Equal(t, 0, snap.CurrentIndex)

	assert.Never(t, func() bool {
		return s.Snapshot().CurrentIndex != 0
	}, 300*time.Millisecond, 10*time.Millisecond)
}

func TestSession_TimerStopsOnAnswer(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	questions := buildQuestions(t, 2, 3)
	s := NewSession(fastConfig(), store, "student-1", 1, questions, nil)
	_, err := s.Start(0)
	require.NoError(t, err)

	_, recorded, err := s.SubmitAnswer(ctx, 1, "A")
	require.NoError(t, err)
	assert.True(t, recorded)

	assert.Never(t, func() bool {
		return s.Snapshot().CurrentIndex != 0
	}, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, "A", store.answer(1).Answer)
	assert.Equal(t, 1, store.insertCount())
}

func TestSession_UnsyncedCompletionAndRetry(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	questions := buildQuestions(t, 2, 0)
	s := NewSession(fastConfig(), store, "student-1", 1, questions, nil)
	_, err := s.Start(0)
	require.NoError(t, err)
	_, err = s.Pause(ctx)
	require.NoError(t, err)
	_, err = s.Resume()
	require.NoError(t, err)

	store.setFailures(true, false, false)
	answer, recorded, err := s.SubmitAnswer(ctx, 1, "A")
	require.ErrorIs(t, err, errStoreDown)
	assert.True(t, recorded)
	assert.Equal(t, "A", answer.Answer)
	assert.Equal(t, 1, s.Snapshot().UnsyncedAnswers)

	result, err := s.Complete(ctx)
	require.NoError(t, err)
	assert.False(t, result.Synced)
	assert.NotEmpty(t, result.SyncError)
	assert.Equal(t, 1, result.Stats.CorrectAnswers)
	assert.NotNil(t, store.currentProgress(), "progress must survive until answers are stored")
	assert.False(t, s.Settled())

	store.setFailures(false, false, false)
	snap, err := s.RetrySync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.UnsyncedAnswers)
	require.NotNil(t, snap.Result)
	assert.True(t, snap.Result.Synced)
	assert.Nil(t, store.currentProgress())
	assert.Equal(t, "A", store.answer(1).Answer)
	assert.True(t, s.Settled())
}

func TestSession_AbandonClearsProgress(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := NewSession(fastConfig(), store, "student-1", 1, buildQuestions(t, 3, 0), nil)
	_, err := s.Start(0)
	require.NoError(t, err)
	_, err = s.Next(ctx)
	require.NoError(t, err)
	_, err = s.Pause(ctx)
	require.NoError(t, err)
	require.NotNil(t, store.currentProgress())

	store.setFailures(false, false, true)
	assert.ErrorIs(t, s.Abandon(ctx), errStoreDown)
	assert.False(t, s.Closed())

	store.setFailures(false, false, false)
	require.NoError(t, s.Abandon(ctx))
	assert.True(t, s.Closed())
	assert.Nil(t, store.currentProgress())
	assert.Nil(t, store.completion(), "abandoning is not completing")

	_, err = s.Resume()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSession_CloseSavesResumePosition(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := NewSession(fastConfig(), store, "student-1", 1, buildQuestions(t, 3, 0), nil)
	_, err := s.Start(0)
	require.NoError(t, err)
	_, err = s.Next(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Close(ctx))
	assert.True(t, s.Closed())
	require.NotNil(t, store.currentProgress())
	assert.Equal(t, 2, *store.currentProgress())

	// A failed save is reported but the session still closes.
	store = newFakeStore()
	s = NewSession(fastConfig(), store, "student-1", 1, buildQuestions(t, 3, 0), nil)
	_, err = s.Start(0)
	require.NoError(t, err)
	store.setFailures(false, true, false)
	assert.ErrorIs(t, s.Close(ctx), errStoreDown)
	assert.True(t, s.Closed())
	assert.Nil(t, store.currentProgress())
}

func TestSession_ExistingAnswersArePreloaded(t *testing.T) {
	ctx := context.Background()
	yes := true
	existing := []*models.StudentAnswer{{StudentID: "student-1", QuestionID: 1, Answer: "A", IsCorrect: &yes}}
	store := newFakeStore()
	s := NewSession(fastConfig(), store, "student-1", 1, buildQuestions(t, 2, 0), existing)

	snap, err := s.Start(0)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.AnsweredCount)
	require.NotNil(t, snap.Current.Answer)
	assert.Equal(t, "A", *snap.Current.Answer)

	_, recorded, err := s.SubmitAnswer(ctx, 1, "B")
	require.NoError(t, err)
	assert.False(t, recorded)
	assert.Equal(t, 0, store.insertCount())
}

func TestSession_TimeSpentUsesClock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	store := newFakeStore()
	s := NewSession(fastConfig(), store, "student-1", 1, buildQuestions(t, 1, 0), nil, WithClock(clock))
	_, err := s.Start(0)
	require.NoError(t, err)

	advance(12 * time.Second)
	_, err = s.Pause(ctx)
	require.NoError(t, err)
	advance(time.Hour)
	_, err = s.Resume()
	require.NoError(t, err)
	advance(8 * time.Second)

	answer, _, err := s.SubmitAnswer(ctx, 1, "A")
	require.NoError(t, err)
	require.NotNil(t, answer.TimeSpent)
	assert.Equal(t, 20, *answer.TimeSpent)

	result, err := s.Complete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, result.Stats.TotalTimeMinutes)
}
