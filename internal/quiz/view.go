package quiz

import (
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
)

type OptionView struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// QuestionView is a question as shown during an attempt: no correct answer,
// no explanation.
type QuestionView struct {
	ID        uint                `json:"id"`
	Type      models.QuestionType `json:"type"`
	Question  string              `json:"question"`
	Options   []OptionView        `json:"options"`
	ImageURL  *string             `json:"image_url,omitempty"`
	TimeLimit int                 `json:"time_limit"`
	Answer    *string             `json:"answer,omitempty"`
}

func NewQuestionView(question *models.Question, answer *models.StudentAnswer) *QuestionView {
	options := question.OptionList()
	view := &QuestionView{
		ID:        question.ID,
		Type:      question.Type,
		Question:  question.QuestionText,
		Options:   make([]OptionView, 0, len(options)),
		ImageURL:  question.ImageURL,
		TimeLimit: question.TimeLimitSeconds(),
	}
	for i, option := range options {
		view.Options = append(view.Options, OptionView{Key: models.OptionKey(i), Text: option})
	}
	if answer != nil {
		value := answer.Answer
		view.Answer = &value
	}
	return view
}

// Snapshot is a point-in-time copy of a session's observable state.
type Snapshot struct {
	StudentID        string        `json:"student_id"`
	CategoryID       uint          `json:"category_id"`
	State            State         `json:"state"`
	CurrentIndex     int           `json:"current_index"`
	TotalQuestions   int           `json:"total_questions"`
	Current          *QuestionView `json:"current,omitempty"`
	RemainingSeconds *int          `json:"remaining_seconds,omitempty"`
	AnsweredCount    int           `json:"answered_count"`
	Answered         map[uint]bool `json:"answered"`
	UnsyncedAnswers  int           `json:"unsynced_answers"`
	StartedAt        time.Time     `json:"started_at"`
	Result           *Result       `json:"result,omitempty"`
}

// Result is the outcome of complete(). Synced is false when the answers or
// the progress reset could not be persisted; the stats are still valid.
type Result struct {
	StudentID  string                  `json:"student_id"`
	CategoryID uint                    `json:"category_id"`
	Stats      models.QuizAttemptStats `json:"stats"`
	Synced     bool                    `json:"synced"`
	SyncError  string                  `json:"sync_error,omitempty"`
}
