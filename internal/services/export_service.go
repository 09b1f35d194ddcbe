package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/quiz"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet      = "Summary"
	maxSheetNameRunes = 31
	exportTimeLayout  = "2006-01-02 15:04"
)

var (
	summaryHeaders = []string{
		"Category", "Mode", "Published", "Completed", "Total Questions", "Correct", "Incorrect",
		"Timed Out", "Pending Review", "Unanswered", "Accuracy %", "Total Time (min)", "Completed At",
	}
	answerHeaders = []string{
		"#", "Question", "Type", "Answer", "Correct Answer", "Result", "Time Spent (s)", "Answered At",
	}
)

type exportService struct {
	repo   repositories.Repository
	logger *ServiceLogger
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		logger: NewServiceLogger(logger, LogConfig{Service: "quiz-service", Component: "export"}),
	}
}

// ExportStudentResults writes an xlsx workbook with a summary sheet and one
// sheet of answers per assigned category.
func (s *exportService) ExportStudentResults(ctx context.Context, actor *models.User, studentID string, w io.Writer) (err error) {
	op := s.logger.WithOperation(ctx, "export_student_results", actorID(actor))
	defer func() { op.LogResult(studentID, "student", err) }()

	if err := requireAdmin(actor, "student", studentID, "export"); err != nil {
		return err
	}
	if _, err := s.repo.User().GetByID(ctx, nil, studentID); err != nil {
		return storeError(err, ErrUserNotFound, "load student")
	}
	assignments, err := s.repo.Assignment().ListByStudent(ctx, nil, studentID)
	if err != nil {
		return storeError(err, nil, "list assignments")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := writeRow(f, summarySheet, 1, toCells(summaryHeaders)); err != nil {
		return err
	}

	used := map[string]bool{strings.ToLower(summarySheet): true}
	for i, assignment := range assignments {
		questions, err := s.repo.Question().GetByCategory(ctx, nil, assignment.CategoryID)
		if err != nil {
			return storeError(err, nil, "load questions")
		}
		rows, err := s.repo.Answer().GetByStudentAndCategory(ctx, nil, studentID, assignment.CategoryID)
		if err != nil {
			return storeError(err, nil, "load answers")
		}
		answers := quiz.AnswerMap(rows)
		stats := storedStats(questions, answers, assignment.CompletedAt)

		name := fmt.Sprintf("Category %d", assignment.CategoryID)
		if assignment.Category != nil {
			name = assignment.Category.Name
		}

		completedAt := ""
		if assignment.CompletedAt != nil {
			completedAt = assignment.CompletedAt.Format(exportTimeLayout)
		}
		summary := []interface{}{
			name, modeLabel(assignment.Mode), assignment.Published, assignment.IsCompleted(),
			stats.TotalQuestions, stats.CorrectAnswers, stats.IncorrectAnswers, stats.TimedOut,
			stats.PendingReview, stats.Unanswered, stats.AccuracyPercent, stats.TotalTimeMinutes, completedAt,
		}
		if err := writeRow(f, summarySheet, i+2, summary); err != nil {
			return err
		}

		sheet := uniqueSheetName(name, assignment.CategoryID, used)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create Excel sheet: %w", err)
		}
		if err := writeRow(f, sheet, 1, toCells(answerHeaders)); err != nil {
			return err
		}
		for j, question := range questions {
			if err := writeRow(f, sheet, j+2, answerRow(j+1, question, answers[question.ID])); err != nil {
				return err
			}
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}

func answerRow(n int, question *models.Question, answer *models.StudentAnswer) []interface{} {
	correct := question.CorrectKey()
	if text := question.OptionText(correct); text != "" {
		correct = fmt.Sprintf("%s. %s", correct, text)
	}
	row := []interface{}{n, question.QuestionText, string(question.Type), "", correct, "unanswered", "", ""}
	if answer == nil {
		return row
	}

	value := answer.Answer
	if text := question.OptionText(value); text != "" && !answer.IsTimeout() {
		value = fmt.Sprintf("%s. %s", value, text)
	}
	row[3] = value
	switch {
	case answer.IsTimeout():
		row[5] = "timeout"
	case answer.NeedsReview():
		row[5] = "review"
	case answer.Correct():
		row[5] = "correct"
	default:
		row[5] = "incorrect"
	}
	if answer.TimeSpent != nil {
		row[6] = *answer.TimeSpent
	}
	row[7] = answer.AnsweredAt.Format(exportTimeLayout)
	return row
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func modeLabel(mode bool) string {
	if mode {
		return "quiz"
	}
	return "study"
}

// uniqueSheetName makes a category name usable as a sheet name: no
// reserved characters, at most 31 runes, unique in the workbook.
func uniqueSheetName(name string, categoryID uint, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = "Category"
	}

	candidate := truncateRunes(clean, maxSheetNameRunes)
	if used[strings.ToLower(candidate)] {
		suffix := fmt.Sprintf(" (%d)", categoryID)
		candidate = truncateRunes(clean, maxSheetNameRunes-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
