package services

import (
	"context"
	"io"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/quiz"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
)

// IdentityService maps credentials and tokens to application users.
type IdentityService interface {
	Register(ctx context.Context, req *RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req *LoginRequest) (*Session, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
	Logout(ctx context.Context, token string) error

	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, req *UpdateProfileRequest) (*models.User, error)
	ListStudents(ctx context.Context, actor *models.User, filters repositories.UserFilters) ([]*models.User, int64, error)
}

// CatalogService is the category/question CRUD surface.
type CatalogService interface {
	ListCategories(ctx context.Context, actor *models.User, filters repositories.CategoryFilters) ([]*models.Category, int64, error)
	GetCategory(ctx context.Context, actor *models.User, id uint) (*models.Category, error)
	CreateCategory(ctx context.Context, actor *models.User, req *CategoryRequest) (*models.Category, error)
	UpdateCategory(ctx context.Context, actor *models.User, id uint, req *CategoryRequest) (*models.Category, error)
	DeleteCategory(ctx context.Context, actor *models.User, id uint) error

	ListQuestions(ctx context.Context, actor *models.User, categoryID uint) ([]*models.Question, error)
	GetQuestion(ctx context.Context, actor *models.User, id uint) (*models.Question, error)
	CreateQuestion(ctx context.Context, actor *models.User, req *QuestionRequest) (*models.Question, error)
	UpdateQuestion(ctx context.Context, actor *models.User, id uint, req *QuestionRequest) (*models.Question, error)
	DeleteQuestion(ctx context.Context, actor *models.User, id uint) error
	UploadQuestionImage(ctx context.Context, actor *models.User, id uint, image io.Reader) (*models.Question, error)
}

// PublicationService is the admin side of the (student, category)
// coordination record and the explanation bundles.
type PublicationService interface {
	Assign(ctx context.Context, actor *models.User, studentID string, categoryID uint) (*models.StudentCategory, error)
	Unassign(ctx context.Context, actor *models.User, studentID string, categoryID uint) error
	ListStudentAssignments(ctx context.Context, actor *models.User, studentID string) ([]*AssignmentSummary, error)

	ToggleMode(ctx context.Context, actor *models.User, studentID string, categoryID uint) (*models.StudentCategory, error)
	TogglePublished(ctx context.Context, actor *models.User, studentID string, categoryID uint, published bool) (*models.StudentCategory, error)
	SendExplanations(ctx context.Context, actor *models.User, studentID string, categoryID uint, req *SendExplanationsRequest) (*models.StudentExplanation, error)
	ResetAttempt(ctx context.Context, actor *models.User, studentID string, categoryID uint) error

	GetExplanations(ctx context.Context, actor *models.User, studentID string, categoryID uint) (*models.StudentExplanation, error)
	MarkAsRead(ctx context.Context, actor *models.User, studentID string, categoryID uint) (*models.StudentExplanation, error)

	// RetryPendingExplanations moves bundles held in the fallback cache into
	// the store. It returns how many were synced.
	RetryPendingExplanations(ctx context.Context) (int, error)
}

// QuizService runs live quiz sessions, one per (student, category).
type QuizService interface {
	LoadResumeState(ctx context.Context, studentID string, categoryID uint) (*ResumeState, error)
	Start(ctx context.Context, studentID string, categoryID uint, req *StartQuizRequest) (*quiz.Snapshot, error)
	Snapshot(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error)

	SubmitAnswer(ctx context.Context, studentID string, categoryID uint, req *SubmitAnswerRequest) (*AnswerResponse, error)
	Next(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error)
	Previous(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error)
	Pause(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error)
	Resume(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error)
	Complete(ctx context.Context, studentID string, categoryID uint) (*quiz.Result, error)
	RetrySync(ctx context.Context, studentID string, categoryID uint) (*quiz.Snapshot, error)
	Abandon(ctx context.Context, studentID string, categoryID uint) error

	Results(ctx context.Context, studentID string, categoryID uint) (*ResultsView, error)
	AttemptStats(ctx context.Context, studentID string, categoryID uint) (*models.QuizAttemptStats, error)

	SessionCloser
	ActiveSessions() int
	Shutdown(ctx context.Context) error
}

// SessionCloser lets the publication workflow end live sessions when it
// takes a pair out of quiz mode.
type SessionCloser interface {
	CloseSession(ctx context.Context, studentID string, categoryID uint)
}

// ExportService renders results workbooks.
type ExportService interface {
	ExportStudentResults(ctx context.Context, actor *models.User, studentID string, w io.Writer) error
}

// OverviewService serves the admin per-student overview.
type OverviewService interface {
	StudentOverview(ctx context.Context, actor *models.User, studentID string) (*models.StudentOverview, error)
	// RefreshAll recomputes and caches every student's overview.
	RefreshAll(ctx context.Context) (int, error)
}
