package quiz

import (
	"context"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
)

// startTimerLocked starts the countdown for the current question if it is
// timed and unanswered. A question keeps its remaining time across pauses
// and navigation.
func (s *Session) startTimerLocked() {
	question := s.currentLocked()
	if question == nil || s.answers[question.ID] != nil {
		return
	}
	limit := question.TimeLimitSeconds()
	if limit <= 0 {
		return
	}
	remaining, ok := s.remaining[question.ID]
	if !ok {
		remaining = limit
		s.remaining[question.ID] = remaining
	}
	if remaining <= 0 {
		return
	}

	s.stopTimerLocked()
	stop := make(chan struct{})
	s.timerStop = stop
	go s.runTimer(s.timerGen, stop)
}

func (s *Session) startTimerIfActiveLocked() {
	if !s.closed && s.state == StateInProgress {
		s.startTimerLocked()
	}
}

// stopTimerLocked invalidates the live countdown and any delayed advance it
// scheduled.
func (s *Session) stopTimerLocked() {
	s.timerGen++
	if s.timerStop != nil {
		close(s.timerStop)
		s.timerStop = nil
	}
}

func (s *Session) runTimer(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.tick(gen) {
				return
			}
		}
	}
}

// tick consumes one second of the current question. It returns false once
// the countdown is over or stale.
func (s *Session) tick(gen uint64) bool {
	var timedOut *models.Question
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		if timedOut != nil && s.hooks.OnTimeout != nil {
			s.hooks.OnTimeout(s.studentID, s.categoryID, timedOut.ID)
		}
	}()

	if gen != s.timerGen || s.closed || s.state != StateInProgress {
		return false
	}
	question := s.currentLocked()
	if question == nil || s.answers[question.ID] != nil {
		return false
	}

	s.remaining[question.ID]--
	if s.remaining[question.ID] > 0 {
		return true
	}

	// The goroutine exits on return; leave timerGen as is so the delayed
	// advance below still matches unless the user moves first.
	s.timerStop = nil
	timedOut = question
	s.expireLocked(question)

	time.AfterFunc(s.cfg.AdvanceDelay, func() {
		s.autoAdvance(gen)
	})
	return false
}

func (s *Session) expireLocked(question *models.Question) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()

	incorrect := false
	limit := question.TimeLimitSeconds()
	answer := &models.StudentAnswer{
		StudentID:  s.studentID,
		QuestionID: question.ID,
		Answer:     models.AnswerTimeout,
		IsCorrect:  &incorrect,
		AnsweredAt: s.now(),
		TimeSpent:  &limit,
	}
	if _, err := s.recordLocked(ctx, question, answer); err != nil {
		s.logger.Warn("Timeout recorded locally only",
			"student_id", s.studentID, "question_id", question.ID, "error", err)
		return
	}
	s.logger.Info("Question timed out",
		"student_id", s.studentID, "category_id", s.categoryID, "question_id", question.ID)
}

// autoAdvance moves past a timed-out question unless anything touched the
// countdown since it expired.
func (s *Session) autoAdvance(gen uint64) {
	var completed *Result
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.notifyCompleted(completed)
	}()

	if gen != s.timerGen || s.closed || s.state != StateInProgress {
		return
	}

	if s.index < len(s.questions)-1 {
		s.leaveQuestionLocked()
		s.index++
		s.enterQuestionLocked()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()
	completed = s.completeLocked(ctx)
}
