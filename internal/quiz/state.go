package quiz

import (
	"errors"
	"time"
)

// State is the lifecycle position of a quiz session.
type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StatePaused     State = "paused"
	StateCompleted  State = "completed"
)

var (
	ErrNotStarted         = errors.New("quiz session has not started")
	ErrAlreadyStarted     = errors.New("quiz session already started")
	ErrPaused             = errors.New("quiz session is paused")
	ErrNotPaused          = errors.New("quiz session is not paused")
	ErrCompleted          = errors.New("quiz session is already completed")
	ErrClosed             = errors.New("quiz session is closed")
	ErrNotCurrentQuestion = errors.New("question is not the current question")
	ErrInvalidAnswer      = errors.New("answer does not match any option")
	ErrNoQuestions        = errors.New("quiz has no questions")
)

// Config holds the engine timing knobs.
type Config struct {
	// TickInterval is the countdown granularity; one tick consumes one second
	// of a question's time limit.
	TickInterval time.Duration
	// AdvanceDelay is how long a timed-out question stays on screen before the
	// engine moves on.
	AdvanceDelay time.Duration
	// PersistTimeout bounds store calls made from timer goroutines.
	PersistTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TickInterval:   time.Second,
		AdvanceDelay:   1500 * time.Millisecond,
		PersistTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.AdvanceDelay < 0 {
		c.AdvanceDelay = def.AdvanceDelay
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = def.PersistTimeout
	}
	return c
}
