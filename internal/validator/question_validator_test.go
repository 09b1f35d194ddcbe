package validator

import (
	"testing"

	apperrors "github.com/carvajal-autotech/quiz-service/internal/errors"
	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuestion(t *testing.T, qType models.QuestionType, options []string, correct string) *models.Question {
	t.Helper()
	q := &models.Question{
		CategoryID:    1,
		Type:          qType,
		QuestionText:  "What does ABS prevent?",
		CorrectAnswer: correct,
	}
	require.NoError(t, q.SetOptions(options))
	return q
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)
	errs, ok := err.(apperrors.ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	return errs.Fields()
}

func TestValidateQuestion_MultipleChoice(t *testing.T) {
	v := NewQuestionValidator()

	t.Run("valid with letter", func(t *testing.T) {
		q := newQuestion(t, models.MultipleChoice, []string{"Wheel lock", "Overheating", "Fading"}, "A")
		assert.NoError(t, v.ValidateQuestion(q))
	})

	t.Run("valid with option text", func(t *testing.T) {
		q := newQuestion(t, models.MultipleChoice, []string{"Wheel lock", "Overheating"}, "overheating")
		assert.NoError(t, v.ValidateQuestion(q))
	})

	t.Run("no options", func(t *testing.T) {
		q := newQuestion(t, models.MultipleChoice, nil, "A")
		assert.Contains(t, fieldsOf(t, v.ValidateQuestion(q)), "options")
	})

	t.Run("blank and duplicate options", func(t *testing.T) {
		q := newQuestion(t, models.MultipleChoice, []string{"Pads", " ", "pads"}, "A")
		fields := fieldsOf(t, v.ValidateQuestion(q))
		assert.Contains(t, fields, "options[1]")
		assert.Contains(t, fields, "options[2]")
	})

	t.Run("missing correct answer", func(t *testing.T) {
		q := newQuestion(t, models.MultipleChoice, []string{"Pads", "Rotors"}, "")
		assert.Contains(t, fieldsOf(t, v.ValidateQuestion(q)), "correct_answer")
	})

	t.Run("correct answer not among options", func(t *testing.T) {
		q := newQuestion(t, models.MultipleChoice, []string{"Pads", "Rotors"}, "Calipers")
		assert.Contains(t, fieldsOf(t, v.ValidateQuestion(q)), "correct_answer")
	})
}

func TestValidateQuestion_TrueFalse(t *testing.T) {
	v := NewQuestionValidator()

	q := newQuestion(t, models.TrueFalse, models.TrueFalseOptions, "True")
	assert.NoError(t, v.ValidateQuestion(q))

	q = newQuestion(t, models.TrueFalse, []string{"Yes", "No"}, "Yes")
	assert.Contains(t, fieldsOf(t, v.ValidateQuestion(q)), "options")

	q = newQuestion(t, models.TrueFalse, models.TrueFalseOptions, "")
	assert.Contains(t, fieldsOf(t, v.ValidateQuestion(q)), "correct_answer")
}

func TestValidateQuestion_FreeText(t *testing.T) {
	v := NewQuestionValidator()

	q := newQuestion(t, models.FreeText, nil, "")
	assert.NoError(t, v.ValidateQuestion(q))

	q = newQuestion(t, models.FreeText, []string{"A"}, "")
	assert.Contains(t, fieldsOf(t, v.ValidateQuestion(q)), "options")
}

func TestValidateQuestion_CommonFields(t *testing.T) {
	v := NewQuestionValidator()

	limit := MaxTimeLimitSeconds + 1
	q := newQuestion(t, models.FreeText, nil, "")
	q.QuestionText = "  "
	q.CategoryID = 0
	q.TimeLimit = &limit

	fields := fieldsOf(t, v.ValidateQuestion(q))
	assert.ElementsMatch(t, []string{"question", "category_id", "time_limit"}, fields)

	q = newQuestion(t, "essay", nil, "")
	assert.Contains(t, fieldsOf(t, v.ValidateQuestion(q)), "type")
}

func TestValidateExplanationEntries(t *testing.T) {
	v := NewQuestionValidator()

	assert.Error(t, v.ValidateExplanationEntries(nil))
	assert.Error(t, v.ValidateExplanationEntries([]models.ExplanationEntry{{Text: "   "}}))
	assert.NoError(t, v.ValidateExplanationEntries([]models.ExplanationEntry{{Text: ""}, {Text: "Pads wear first."}}))
}

func TestValidator_ValidateStruct(t *testing.T) {
	v := New()

	type request struct {
		Type      string `json:"type" validate:"required,question_type"`
		Role      string `json:"role" validate:"required,user_role"`
		TimeLimit *int   `json:"time_limit" validate:"omitempty,time_limit"`
		Title     string `json:"title" validate:"not_blank"`
	}

	limit := 30
	assert.NoError(t, v.Validate(request{Type: "true_false", Role: "student", TimeLimit: &limit, Title: "Brakes"}))

	bad := 4000
	err := v.Validate(request{Type: "essay", Role: "mechanic", TimeLimit: &bad, Title: "   "})
	fields := fieldsOf(t, err)
	assert.ElementsMatch(t, []string{"type", "role", "time_limit", "title"}, fields)
}
