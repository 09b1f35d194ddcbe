package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type ExplanationStatus string

const (
	ExplanationSent ExplanationStatus = "sent"
	ExplanationRead ExplanationStatus = "read"
	// ExplanationPending marks a bundle waiting in the fallback cache. Only
	// admins ever see it.
	ExplanationPending ExplanationStatus = "pending"
)

type ExplanationEntry struct {
	QuestionID   *uint  `json:"question_id,omitempty"`
	QuestionText string `json:"question_text,omitempty" validate:"omitempty,max=2000"`
	Text         string `json:"text" validate:"required,max=5000"`
}

// StudentExplanation is the explanation bundle sent to one student for one
// category. Re-sending overwrites the previous bundle.
type StudentExplanation struct {
	ID           uint              `json:"id" gorm:"primaryKey"`
	StudentID    string            `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_student_category_explanation"`
	CategoryID   uint              `json:"category_id" gorm:"not null;uniqueIndex:idx_student_category_explanation"`
	CategoryName string            `json:"category_name" gorm:"size:150"`
	Explanations string            `json:"explanations" gorm:"type:text;not null"`
	Entries      datatypes.JSON    `json:"entries" gorm:"type:jsonb"` // []ExplanationEntry
	SentAt       time.Time         `json:"sent_at" gorm:"not null"`
	SentBy       string            `json:"sent_by" gorm:"size:255"`
	Status       ExplanationStatus `json:"status" gorm:"size:20;not null;default:sent"`
	ReadAt       *time.Time        `json:"read_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Synced is false when the bundle only lives in the fallback cache.
	Synced bool `json:"synced" gorm:"-"`
}

func (StudentExplanation) TableName() string {
	return "student_explanations"
}

func (e *StudentExplanation) EntryList() []ExplanationEntry {
	if len(e.Entries) == 0 {
		return []ExplanationEntry{}
	}
	var entries []ExplanationEntry
	if err := json.Unmarshal(e.Entries, &entries); err != nil {
		return []ExplanationEntry{}
	}
	return entries
}

func (e *StudentExplanation) SetEntries(entries []ExplanationEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	e.Entries = datatypes.JSON(data)
	return nil
}

func (e *StudentExplanation) IsRead() bool {
	return e.Status == ExplanationRead
}
