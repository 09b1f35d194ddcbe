package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	FreeText       QuestionType = "free_text"
)

func (t QuestionType) IsValid() bool {
	return t == MultipleChoice || t == TrueFalse || t == FreeText
}

// HasOptions reports whether answers are chosen from Options.
func (t QuestionType) HasOptions() bool {
	return t == MultipleChoice || t == TrueFalse
}

// Canonical true/false options, in key order A, B.
const (
	TrueOption  = "True"
	FalseOption = "False"
)

var TrueFalseOptions = []string{TrueOption, FalseOption}

type Question struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	CategoryID    uint           `json:"category_id" gorm:"not null;index"`
	Type          QuestionType   `json:"type" gorm:"not null;size:30"`
	QuestionText  string         `json:"question" gorm:"column:question;type:text;not null"`
	Options       datatypes.JSON `json:"options" gorm:"type:jsonb"` // []string
	CorrectAnswer string         `json:"correct_answer,omitempty" gorm:"column:correct_answer;type:text"`
	Explanation   *string        `json:"explanation,omitempty" gorm:"type:text"`
	ImageURL      *string        `json:"image_url" gorm:"column:image_url;size:500"`
	TimeLimit     *int           `json:"time_limit" gorm:"column:time_limit"` // seconds

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "questions"
}

// OptionList decodes Options. Malformed JSON yields an empty list.
func (q *Question) OptionList() []string {
	if len(q.Options) == 0 {
		return []string{}
	}
	var options []string
	if err := json.Unmarshal(q.Options, &options); err != nil {
		return []string{}
	}
	return options
}

func (q *Question) SetOptions(options []string) error {
	if options == nil {
		options = []string{}
	}
	data, err := json.Marshal(options)
	if err != nil {
		return err
	}
	q.Options = datatypes.JSON(data)
	return nil
}

// TimeLimitSeconds returns 0 when the question is untimed.
func (q *Question) TimeLimitSeconds() int {
	if q.TimeLimit == nil || *q.TimeLimit < 0 {
		return 0
	}
	return *q.TimeLimit
}

// OptionKey is the stable identity of the option at position i: "A", "B", ...
// Past "Z" the key is the 1-based position.
func OptionKey(i int) string {
	if i >= 0 && i < 26 {
		return string(rune('A' + i))
	}
	return strconv.Itoa(i + 1)
}

// ResolveOptionKey maps a raw choice (key letter, 0-based index, or option
// text) to the option key. The bool is false when nothing matches.
func (q *Question) ResolveOptionKey(raw string) (string, bool) {
	options := q.OptionList()
	value := strings.TrimSpace(raw)
	if value == "" || len(options) == 0 {
		return "", false
	}

	for i := range options {
		if strings.EqualFold(value, OptionKey(i)) {
			return OptionKey(i), true
		}
	}

	for i, option := range options {
		if strings.EqualFold(value, strings.TrimSpace(option)) {
			return OptionKey(i), true
		}
	}

	if idx, err := strconv.Atoi(value); err == nil && idx >= 0 && idx < len(options) {
		return OptionKey(idx), true
	}

	return "", false
}

// OptionText returns the option text for a key, or "" if the key is unknown.
func (q *Question) OptionText(key string) string {
	for i, option := range q.OptionList() {
		if OptionKey(i) == key {
			return option
		}
	}
	return ""
}

// CorrectKey is the normalized correct answer: an option key for choice
// questions, the trimmed expected text for free text.
func (q *Question) CorrectKey() string {
	if q.Type.HasOptions() {
		key, _ := q.ResolveOptionKey(q.CorrectAnswer)
		return key
	}
	return strings.TrimSpace(q.CorrectAnswer)
}
