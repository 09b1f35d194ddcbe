package validator

import (
	"fmt"
	"strings"

	apperrors "github.com/carvajal-autotech/quiz-service/internal/errors"
	"github.com/carvajal-autotech/quiz-service/internal/models"
)

const (
	MaxTimeLimitSeconds = 3600
	MinChoiceOptions    = 2
	MaxChoiceOptions    = 26
)

// QuestionValidator handles question-specific validation
type QuestionValidator struct{}

// NewQuestionValidator creates a new question validator
func NewQuestionValidator() *QuestionValidator {
	return &QuestionValidator{}
}

// ValidateQuestion checks the per-type invariants of a question. It returns
// ValidationErrors, or nil when the question is well formed.
func (v *QuestionValidator) ValidateQuestion(question *models.Question) error {
	var errs apperrors.ValidationErrors

	if strings.TrimSpace(question.QuestionText) == "" {
		errs = append(errs, *apperrors.NewValidationErrorWithRule("question", "is required", "required", question.QuestionText))
	}

	if question.CategoryID == 0 {
		errs = append(errs, *apperrors.NewValidationErrorWithRule("category_id", "is required", "required", question.CategoryID))
	}

	if limit := question.TimeLimit; limit != nil && (*limit < 0 || *limit > MaxTimeLimitSeconds) {
		errs = append(errs, *apperrors.NewValidationErrorWithRule("time_limit",
			fmt.Sprintf("must be between 0 and %d seconds", MaxTimeLimitSeconds), "time_limit", *limit))
	}

	switch question.Type {
	case models.MultipleChoice:
		errs = append(errs, v.validateMultipleChoice(question)...)
	case models.TrueFalse:
		errs = append(errs, v.validateTrueFalse(question)...)
	case models.FreeText:
		errs = append(errs, v.validateFreeText(question)...)
	default:
		errs = append(errs, *apperrors.NewValidationErrorWithRule("type",
			"must be a valid question type (multiple_choice, true_false, free_text)", "question_type", question.Type))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *QuestionValidator) validateMultipleChoice(question *models.Question) apperrors.ValidationErrors {
	var errs apperrors.ValidationErrors
	options := question.OptionList()

	if len(options) < MinChoiceOptions || len(options) > MaxChoiceOptions {
		errs = append(errs, *apperrors.NewValidationErrorWithRule("options",
			fmt.Sprintf("must contain between %d and %d options", MinChoiceOptions, MaxChoiceOptions), "options", len(options)))
		return errs
	}

	seen := make(map[string]bool, len(options))
	for i, option := range options {
		normalized := strings.ToLower(strings.TrimSpace(option))
		if normalized == "" {
			errs = append(errs, *apperrors.NewValidationErrorWithRule(fmt.Sprintf("options[%d]", i), "must not be blank", "not_blank", option))
			continue
		}
		if seen[normalized] {
			errs = append(errs, *apperrors.NewValidationErrorWithRule(fmt.Sprintf("options[%d]", i), "duplicates another option", "unique", option))
		}
		seen[normalized] = true
	}

	errs = append(errs, v.validateCorrectChoice(question)...)
	return errs
}

func (v *QuestionValidator) validateTrueFalse(question *models.Question) apperrors.ValidationErrors {
	var errs apperrors.ValidationErrors
	options := question.OptionList()

	if len(options) != len(models.TrueFalseOptions) ||
		options[0] != models.TrueOption || options[1] != models.FalseOption {
		errs = append(errs, *apperrors.NewValidationErrorWithRule("options",
			fmt.Sprintf("must be exactly [%s, %s]", models.TrueOption, models.FalseOption), "true_false_options", options))
		return errs
	}

	errs = append(errs, v.validateCorrectChoice(question)...)
	return errs
}

func (v *QuestionValidator) validateFreeText(question *models.Question) apperrors.ValidationErrors {
	var errs apperrors.ValidationErrors
	if len(question.OptionList()) > 0 {
		errs = append(errs, *apperrors.NewValidationErrorWithRule("options", "must be empty for free_text questions", "free_text_options", question.OptionList()))
	}
	return errs
}

func (v *QuestionValidator) validateCorrectChoice(question *models.Question) apperrors.ValidationErrors {
	if strings.TrimSpace(question.CorrectAnswer) == "" {
		return apperrors.ValidationErrors{*apperrors.NewValidationErrorWithRule("correct_answer", "is required", "required", question.CorrectAnswer)}
	}
	if _, ok := question.ResolveOptionKey(question.CorrectAnswer); !ok {
		return apperrors.ValidationErrors{*apperrors.NewValidationErrorWithRule("correct_answer", "must match one of the options", "option_match", question.CorrectAnswer)}
	}
	return nil
}

// ValidateExplanationEntries rejects an empty explanation bundle.
func (v *QuestionValidator) ValidateExplanationEntries(entries []models.ExplanationEntry) error {
	if len(entries) == 0 {
		return apperrors.Single("explanations", "must not be empty", nil)
	}
	for _, entry := range entries {
		if strings.TrimSpace(entry.Text) != "" {
			return nil
		}
	}
	return apperrors.Single("explanations", "must contain at least one non-blank explanation", nil)
}
