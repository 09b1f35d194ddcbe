package quiz

import (
	"math"
	"strings"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
)

// Evaluate normalizes a submitted answer and grades it. Choice answers are
// stored as option keys; free text is stored trimmed. A nil correctness means
// the answer needs manual review.
func Evaluate(question *models.Question, raw string) (string, *bool, error) {
	if question.Type.HasOptions() {
		key, ok := question.ResolveOptionKey(raw)
		if !ok {
			return "", nil, ErrInvalidAnswer
		}
		correct := key == question.CorrectKey()
		return key, &correct, nil
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		return "", nil, ErrInvalidAnswer
	}
	return text, gradeFreeText(question, text), nil
}

// Grade re-derives correctness for a stored answer, accepting legacy
// representations (option text or index) for choice questions.
func Grade(question *models.Question, stored string) *bool {
	if stored == models.AnswerTimeout {
		return boolPtr(false)
	}
	if question.Type.HasOptions() {
		key, ok := question.ResolveOptionKey(stored)
		return boolPtr(ok && key == question.CorrectKey())
	}
	return gradeFreeText(question, strings.TrimSpace(stored))
}

func gradeFreeText(question *models.Question, text string) *bool {
	expected := question.CorrectKey()
	if expected != "" && strings.EqualFold(expected, text) {
		return boolPtr(true)
	}
	return nil
}

// Accuracy is round(correct/total*100) clamped to [0, 100]; zero when total
// is zero.
func Accuracy(correct, total int) int {
	if total <= 0 || correct <= 0 {
		return 0
	}
	pct := int(math.Round(float64(correct) / float64(total) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}

// ComputeStats derives attempt statistics for the ordered question list from
// the answers keyed by question id.
func ComputeStats(questions []*models.Question, answers map[uint]*models.StudentAnswer, startedAt, completedAt time.Time) models.QuizAttemptStats {
	stats := models.QuizAttemptStats{
		TotalQuestions: len(questions),
		CompletedAt:    completedAt,
	}

	for _, question := range questions {
		answer, ok := answers[question.ID]
		switch {
		case !ok || answer == nil:
			stats.Unanswered++
		case answer.IsTimeout():
			stats.TimedOut++
			stats.IncorrectAnswers++
		case answer.NeedsReview():
			stats.PendingReview++
		case answer.Correct():
			stats.CorrectAnswers++
		default:
			stats.IncorrectAnswers++
		}
	}

	stats.AccuracyPercent = Accuracy(stats.CorrectAnswers, stats.TotalQuestions)
	if !startedAt.IsZero() && completedAt.After(startedAt) {
		stats.TotalTimeMinutes = int(math.Round(completedAt.Sub(startedAt).Minutes()))
	}
	return stats
}

// AnswerMap indexes answers by question id.
func AnswerMap(answers []*models.StudentAnswer) map[uint]*models.StudentAnswer {
	out := make(map[uint]*models.StudentAnswer, len(answers))
	for _, answer := range answers {
		if answer != nil {
			out[answer.QuestionID] = answer
		}
	}
	return out
}

func boolPtr(v bool) *bool {
	return &v
}
