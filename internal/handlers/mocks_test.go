package handlers

import (
	"context"
	"io"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/quiz"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"github.com/carvajal-autotech/quiz-service/internal/services"
	"github.com/stretchr/testify/mock"
)

// ===== IDENTITY =====

type mockIdentityService struct {
	mock.Mock
}

func (m *mockIdentityService) Register(ctx context.Context, req *services.RegisterRequest) (*models.User, error) {
	args := m.Called(ctx, req)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *mockIdentityService) Login(ctx context.Context, req *services.LoginRequest) (*services.Session, error) {
	args := m.Called(ctx, req)
	session, _ := args.Get(0).(*services.Session)
	return session, args.Error(1)
}

func (m *mockIdentityService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	args := m.Called(ctx, token)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *mockIdentityService) Logout(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockIdentityService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *mockIdentityService) UpdateProfile(ctx context.Context, userID string, req *services.UpdateProfileRequest) (*models.User, error) {
	args := m.Called(ctx, userID, req)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *mockIdentityService) ListStudents(ctx context.Context, actor *models.User, filters repositories.UserFilters) ([]*models.User, int64, error) {
	args := m.Called(ctx, actor, filters)
	users, _ := args.Get(0).([]*models.User)
	return users, args.Get(1).(int64), args.Error(2)
}

// ===== QUIZ =====

type mockQuizService struct {
	mock.Mock
}

func (m *mockQuizService) snapshot(args mock.Arguments) (*quiz.Snapshot, error) {
	snap, _ := args.Get(0).(*quiz.Snapshot)
	return snap, args.Error(1)
}

func (m *mockQuizService) LoadResumeState(ctx context.Context, studentID string, categoryID uint) (*services.ResumeState, error) {
	args := m.Called(ctx, studentID, categoryID)
	state, _ := args.Get(0).(*services.ResumeState)
	return state, args.Error(1)
}

func (m *mockQuizService) Start(ctx context.Context, studentID string, categoryID uint, req *services.StartQuizRequest) (*quiz.Snapshot, error) {
	return m.snapshot(m.Called(ctx, studentID, categoryID, req))
}

func (m *mockQuizService) Snapshot(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error) {
	return m.snapshot(m.Called(ctx, studentID, categoryID))
}

func (m *mockQuizService) SubmitAnswer(ctx context.Context, studentID string, categoryID uint, req *services.SubmitAnswerRequest) (*services.AnswerResponse, error) {
	args := m.Called(ctx, studentID, categoryID, req)
	resp, _ := args.Get(0).(*services.AnswerResponse)
	return resp, args.Error(1)
}

func (m *mockQuizService) Next(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error) {
	return m.snapshot(m.Called(ctx, studentID, categoryID))
}

func (m *mockQuizService) Previous(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error) {
	return m.snapshot(m.Called(ctx, studentID, categoryID))
}

func (m *mockQuizService) Pause(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error) {
	return m.snapshot(m.Called(ctx, studentID, categoryID))
}

func (m *mockQuizService) Resume(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error) {
	return m.snapshot(m.Called(ctx, studentID, categoryID))
}

func (m *mockQuizService) Complete(ctx context.Context, studentID string, categoryID uint) (*quiz.Result, error) {
	args := m.Called(ctx, studentID, categoryID)
	result, _ := args.Get(0).(*quiz.Result)
	return result, args.Error(1)
}

func (m *mockQuizService) RetrySync(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error) {
	return m.snapshot(m.Called(ctx, studentID, categoryID))
}

func (m *mockQuizService) Abandon(ctx context.Context, studentID string, categoryID uint) error {
	return m.Called(ctx, studentID, categoryID).Error(0)
}

func (m *mockQuizService) Results(ctx context.Context, studentID string, categoryID uint) (*services.ResultsView, error) {
	args := m.Called(ctx, studentID, categoryID)
	view, _ := args.Get(0).(*services.ResultsView)
	return view, args.Error(1)
}

func (m *mockQuizService) AttemptStats(ctx context.Context, studentID string, categoryID uint) (*models.QuizAttemptStats, error) {
	args := m.Called(ctx, studentID, categoryID)
	stats, _ := args.Get(0).(*models.QuizAttemptStats)
	return stats, args.Error(1)
}

func (m *mockQuizService) CloseSession(ctx context.Context, studentID string, categoryID uint) {
	m.Called(ctx, studentID, categoryID)
}

func (m *mockQuizService) ActiveSessions() int {
	return m.Called().Int(0)
}

func (m *mockQuizService) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// ===== EXPORT =====

type stubExportService struct {
	payload string
	err     error
}

func (s stubExportService) ExportStudentResults(_ context.Context, _ *models.User, _ string, w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	_, err := io.WriteString(w, s.payload)
	return err
}
