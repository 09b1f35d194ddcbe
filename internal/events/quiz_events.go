package events

import (
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/google/uuid"
)

// EventType represents different types of quiz domain events
type EventType string

const (
	// Quiz session events
	EventQuizStarted      EventType = "quiz.started"
	EventQuizPaused       EventType = "quiz.paused"
	EventQuizCompleted    EventType = "quiz.completed"
	EventQuestionTimedOut EventType = "quiz.question_timed_out"
	EventAttemptReset     EventType = "quiz.attempt_reset"

	// Publication events
	EventModeChanged        EventType = "assignment.mode_changed"
	EventPublicationChanged EventType = "assignment.publication_changed"
	EventExplanationsSent   EventType = "explanations.sent"
	EventExplanationsRead   EventType = "explanations.read"
)

const (
	EventSource  = "quiz-service"
	EventVersion = "1.0"
)

// Event is the envelope for every domain event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	StudentID string                 `json:"student_id,omitempty"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent stamps a payload with a fresh id and timestamp.
func NewEvent(eventType EventType, studentID string, data interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    EventSource,
		Version:   EventVersion,
		StudentID: studentID,
		Data:      data,
	}
}

// WithMetadata attaches a metadata entry and returns the event.
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Quiz session payloads

type QuizStartedEvent struct {
	StudentID      string `json:"student_id"`
	CategoryID     uint   `json:"category_id"`
	StartIndex     int    `json:"start_index"`
	TotalQuestions int    `json:"total_questions"`
	Resumed        bool   `json:"resumed"`
}

type QuizPausedEvent struct {
	StudentID    string `json:"student_id"`
	CategoryID   uint   `json:"category_id"`
	QuizProgress int    `json:"quiz_progress"`
}

type QuizCompletedEvent struct {
	StudentID  string                  `json:"student_id"`
	CategoryID uint                    `json:"category_id"`
	Stats      models.QuizAttemptStats `json:"stats"`
	Synced     bool                    `json:"synced"`
}

type QuestionTimedOutEvent struct {
	StudentID  string `json:"student_id"`
	CategoryID uint   `json:"category_id"`
	QuestionID uint   `json:"question_id"`
}

type AttemptResetEvent struct {
	StudentID      string `json:"student_id"`
	CategoryID     uint   `json:"category_id"`
	ResetBy        string `json:"reset_by"`
	AnswersRemoved int64  `json:"answers_removed"`
}

// Publication payloads

type ModeChangedEvent struct {
	StudentID  string `json:"student_id"`
	CategoryID uint   `json:"category_id"`
	Mode       bool   `json:"mode"`
	ChangedBy  string `json:"changed_by"`
}

type PublicationChangedEvent struct {
	StudentID  string `json:"student_id"`
	CategoryID uint   `json:"category_id"`
	Published  bool   `json:"published"`
	ChangedBy  string `json:"changed_by"`
}

type ExplanationsSentEvent struct {
	StudentID    string    `json:"student_id"`
	CategoryID   uint      `json:"category_id"`
	CategoryName string    `json:"category_name"`
	EntryCount   int       `json:"entry_count"`
	SentBy       string    `json:"sent_by"`
	SentAt       time.Time `json:"sent_at"`
	Synced       bool      `json:"synced"`
}

type ExplanationsReadEvent struct {
	StudentID  string    `json:"student_id"`
	CategoryID uint      `json:"category_id"`
	ReadAt     time.Time `json:"read_at"`
}
