package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory repositories.Repository. Setting down makes every
// call fail with a connection error.
type memStore struct {
	mu   sync.Mutex
	down bool

	users        map[string]*models.User
	categories   map[uint]*models.Category
	questions    map[uint]*models.Question
	assignments  map[string]*models.StudentCategory
	answers      map[string]*models.StudentAnswer
	explanations map[string]*models.StudentExplanation

	nextID uint
}

func newMemStore() *memStore {
	return &memStore{
		users:        map[string]*models.User{},
		categories:   map[uint]*models.Category{},
		questions:    map[uint]*models.Question{},
		assignments:  map[string]*models.StudentCategory{},
		answers:      map[string]*models.StudentAnswer{},
		explanations: map[string]*models.StudentExplanation{},
		nextID:       100,
	}
}

func (m *memStore) setDown(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

// lock takes the store lock and reports the simulated outage.
func (m *memStore) lock() error {
	m.mu.Lock()
	if m.down {
		m.mu.Unlock()
		return errConnRefused
	}
	return nil
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func pairKey(studentID string, id uint) string {
	return studentID + "/" + uintID(id)
}

func (m *memStore) User() repositories.UserRepository               { return memUsers{m} }
func (m *memStore) Category() repositories.CategoryRepository       { return memCategories{m} }
func (m *memStore) Question() repositories.QuestionRepository       { return memQuestions{m} }
func (m *memStore) Assignment() repositories.AssignmentRepository   { return memAssignments{m} }
func (m *memStore) Answer() repositories.AnswerRepository           { return memAnswers{m} }
func (m *memStore) Explanation() repositories.ExplanationRepository { return memExplanations{m} }

func (m *memStore) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	m.mu.Lock()
	down := m.down
	m.mu.Unlock()
	if down {
		return errConnRefused
	}
	return fn(nil)
}

func (m *memStore) Ping(ctx context.Context) error {
	if err := m.lock(); err != nil {
		return err
	}
	m.mu.Unlock()
	return nil
}

// ===== seeding =====

func (m *memStore) addUser(id string, role models.UserRole) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := &models.User{ID: id, Email: id + "@example.com", Role: role, IsActive: true}
	m.users[id] = user
	return user
}

func (m *memStore) addCategory(name string) *models.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	category := &models.Category{ID: m.id(), Name: name, IsActive: true}
	m.categories[category.ID] = category
	return category
}

func (m *memStore) addQuestion(categoryID uint, qType models.QuestionType, options []string, correct string, timeLimit *int) *models.Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	question := &models.Question{
		ID:            m.id(),
		CategoryID:    categoryID,
		Type:          qType,
		QuestionText:  "Question " + correct,
		CorrectAnswer: correct,
		TimeLimit:     timeLimit,
	}
	if options != nil {
		_ = question.SetOptions(options)
	}
	m.questions[question.ID] = question
	return question
}

func (m *memStore) addAssignment(studentID string, categoryID uint) *models.StudentCategory {
	m.mu.Lock()
	defer m.mu.Unlock()
	assignment := models.NewStudentCategory(studentID, categoryID)
	m.assignments[pairKey(studentID, categoryID)] = assignment
	return assignment
}

func (m *memStore) assignment(studentID string, categoryID uint) *models.StudentCategory {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[pairKey(studentID, categoryID)]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (m *memStore) answerCount(studentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.answers {
		if a.StudentID == studentID {
			n++
		}
	}
	return n
}

// ===== users =====

type memUsers struct{ m *memStore }

func (r memUsers) Create(ctx context.Context, tx *gorm.DB, user *models.User) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	cp := *user
	r.m.users[user.ID] = &cp
	return nil
}

func (r memUsers) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memUsers) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.User, error) {
	var out []*models.User
	for _, id := range ids {
		if u, err := r.GetByID(ctx, tx, id); err == nil {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r memUsers) UpdateProfile(ctx context.Context, tx *gorm.DB, id string, firstName, lastName *string) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.FirstName, u.LastName = firstName, lastName
	return nil
}

func (r memUsers) UpdateLastLogin(ctx context.Context, tx *gorm.DB, id string, loginTime time.Time) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	if u, ok := r.m.users[id]; ok {
		u.LastLoginAt = &loginTime
	}
	return nil
}

func (r memUsers) ExistsByEmail(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, tx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r memUsers) List(ctx context.Context, tx *gorm.DB, filters repositories.UserFilters) ([]*models.User, int64, error) {
	if err := r.m.lock(); err != nil {
		return nil, 0, err
	}
	defer r.m.mu.Unlock()
	var out []*models.User
	for _, u := range r.m.users {
		if filters.Role != nil && u.Role != *filters.Role {
			continue
		}
		if filters.Search != "" && !strings.Contains(u.Email, filters.Search) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

// ===== categories =====

type memCategories struct{ m *memStore }

func (r memCategories) Create(ctx context.Context, tx *gorm.DB, category *models.Category) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	category.ID = r.m.id()
	cp := *category
	r.m.categories[category.ID] = &cp
	return nil
}

func (r memCategories) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Category, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	c, ok := r.m.categories[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memCategories) Update(ctx context.Context, tx *gorm.DB, category *models.Category) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	if _, ok := r.m.categories[category.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *category
	r.m.categories[category.ID] = &cp
	return nil
}

func (r memCategories) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	if _, ok := r.m.categories[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.m.categories, id)
	return nil
}

func (r memCategories) List(ctx context.Context, tx *gorm.DB, filters repositories.CategoryFilters) ([]*models.Category, int64, error) {
	if err := r.m.lock(); err != nil {
		return nil, 0, err
	}
	defer r.m.mu.Unlock()
	var out []*models.Category
	for _, c := range r.m.categories {
		if filters.IsActive != nil && c.IsActive != *filters.IsActive {
			continue
		}
		if filters.StudentID != "" {
			if _, ok := r.m.assignments[pairKey(filters.StudentID, c.ID)]; !ok {
				continue
			}
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r memCategories) QuestionCounts(ctx context.Context, tx *gorm.DB, categoryIDs []uint) (map[uint]int, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	counts := make(map[uint]int, len(categoryIDs))
	for _, q := range r.m.questions {
		counts[q.CategoryID]++
	}
	return counts, nil
}

func (r memCategories) HasQuestions(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	n, err := memQuestions(r).CountByCategory(ctx, tx, id)
	return n > 0, err
}

// ===== questions =====

type memQuestions struct{ m *memStore }

func (r memQuestions) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	question.ID = r.m.id()
	cp := *question
	r.m.questions[question.ID] = &cp
	return nil
}

func (r memQuestions) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	q, ok := r.m.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *q
	return &cp, nil
}

func (r memQuestions) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	if _, ok := r.m.questions[question.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *question
	r.m.questions[question.ID] = &cp
	return nil
}

func (r memQuestions) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	if _, ok := r.m.questions[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.m.questions, id)
	return nil
}

func (r memQuestions) GetByCategory(ctx context.Context, tx *gorm.DB, categoryID uint) ([]*models.Question, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	var out []*models.Question
	for _, q := range r.m.questions {
		if q.CategoryID == categoryID {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memQuestions) CountByCategory(ctx context.Context, tx *gorm.DB, categoryID uint) (int64, error) {
	questions, err := r.GetByCategory(ctx, tx, categoryID)
	return int64(len(questions)), err
}

// ===== assignments =====

type memAssignments struct{ m *memStore }

func (r memAssignments) CreateIfAbsent(ctx context.Context, tx *gorm.DB, assignment *models.StudentCategory) (bool, error) {
	if err := r.m.lock(); err != nil {
		return false, err
	}
	defer r.m.mu.Unlock()
	key := pairKey(assignment.StudentID, assignment.CategoryID)
	if _, ok := r.m.assignments[key]; ok {
		return false, nil
	}
	cp := *assignment
	r.m.assignments[key] = &cp
	return true, nil
}

func (r memAssignments) Get(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (*models.StudentCategory, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	a, ok := r.m.assignments[pairKey(studentID, categoryID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (r memAssignments) GetWithCategory(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (*models.StudentCategory, error) {
	a, err := r.Get(ctx, tx, studentID, categoryID)
	if err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	if c, ok := r.m.categories[categoryID]; ok {
		cp := *c
		a.Category = &cp
	}
	r.m.mu.Unlock()
	return a, nil
}

func (r memAssignments) ListByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.StudentCategory, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	var out []*models.StudentCategory
	for _, a := range r.m.assignments {
		if a.StudentID != studentID {
			continue
		}
		cp := *a
		if c, ok := r.m.categories[a.CategoryID]; ok {
			cc := *c
			cp.Category = &cc
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out, nil
}

func (r memAssignments) ListStudentIDs(ctx context.Context, tx *gorm.DB) ([]string, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, a := range r.m.assignments {
		if !seen[a.StudentID] {
			seen[a.StudentID] = true
			out = append(out, a.StudentID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r memAssignments) Delete(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) error {
	return r.update(studentID, categoryID, func(a *models.StudentCategory) {
		delete(r.m.assignments, pairKey(studentID, categoryID))
	})
}

func (r memAssignments) update(studentID string, categoryID uint, fn func(a *models.StudentCategory)) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	a, ok := r.m.assignments[pairKey(studentID, categoryID)]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	fn(a)
	return nil
}

func (r memAssignments) UpdateMode(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, mode bool) error {
	return r.update(studentID, categoryID, func(a *models.StudentCategory) { a.Mode = mode })
}

func (r memAssignments) UpdatePublished(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, published bool) error {
	return r.update(studentID, categoryID, func(a *models.StudentCategory) { a.Published = published })
}

func (r memAssignments) SetProgress(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, progress *int) error {
	return r.update(studentID, categoryID, func(a *models.StudentCategory) {
		if progress == nil {
			a.QuizProgress = nil
			return
		}
		v := *progress
		a.QuizProgress = &v
	})
}

func (r memAssignments) MarkCompleted(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, completedAt time.Time) error {
	return r.update(studentID, categoryID, func(a *models.StudentCategory) {
		a.QuizProgress = nil
		a.CompletedAt = &completedAt
	})
}

func (r memAssignments) ResetAttempt(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) error {
	return r.update(studentID, categoryID, func(a *models.StudentCategory) {
		a.Mode = true
		a.QuizProgress = nil
		a.CompletedAt = nil
	})
}

// ===== answers =====

type memAnswers struct{ m *memStore }

func (r memAnswers) CreateIfAbsent(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) (bool, error) {
	if err := r.m.lock(); err != nil {
		return false, err
	}
	defer r.m.mu.Unlock()
	key := pairKey(answer.StudentID, answer.QuestionID)
	if _, ok := r.m.answers[key]; ok {
		return false, nil
	}
	answer.ID = r.m.id()
	cp := *answer
	r.m.answers[key] = &cp
	return true, nil
}

func (r memAnswers) Get(ctx context.Context, tx *gorm.DB, studentID string, questionID uint) (*models.StudentAnswer, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	a, ok := r.m.answers[pairKey(studentID, questionID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (r memAnswers) GetByStudentAndCategory(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) ([]*models.StudentAnswer, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	var out []*models.StudentAnswer
	for _, a := range r.m.answers {
		q, ok := r.m.questions[a.QuestionID]
		if a.StudentID != studentID || !ok || q.CategoryID != categoryID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (r memAnswers) CountByStudentAndCategory(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (int64, error) {
	answers, err := r.GetByStudentAndCategory(ctx, tx, studentID, categoryID)
	return int64(len(answers)), err
}

func (r memAnswers) DeleteByStudentAndCategory(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (int64, error) {
	if err := r.m.lock(); err != nil {
		return 0, err
	}
	defer r.m.mu.Unlock()
	var n int64
	for key, a := range r.m.answers {
		if q, ok := r.m.questions[a.QuestionID]; ok && a.StudentID == studentID && q.CategoryID == categoryID {
			delete(r.m.answers, key)
			n++
		}
	}
	return n, nil
}

// ===== explanations =====

type memExplanations struct{ m *memStore }

func (r memExplanations) Upsert(ctx context.Context, tx *gorm.DB, explanation *models.StudentExplanation) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	key := pairKey(explanation.StudentID, explanation.CategoryID)
	if existing, ok := r.m.explanations[key]; ok {
		explanation.ID = existing.ID
	} else {
		explanation.ID = r.m.id()
	}
	cp := *explanation
	r.m.explanations[key] = &cp
	return nil
}

func (r memExplanations) Get(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint) (*models.StudentExplanation, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	e, ok := r.m.explanations[pairKey(studentID, categoryID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	cp.Synced = true
	return &cp, nil
}

func (r memExplanations) ListByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.StudentExplanation, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	var out []*models.StudentExplanation
	for _, e := range r.m.explanations {
		if e.StudentID == studentID {
			cp := *e
			cp.Synced = true
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memExplanations) MarkAsRead(ctx context.Context, tx *gorm.DB, studentID string, categoryID uint, readAt time.Time) (bool, error) {
	if err := r.m.lock(); err != nil {
		return false, err
	}
	defer r.m.mu.Unlock()
	e, ok := r.m.explanations[pairKey(studentID, categoryID)]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if e.Status == models.ExplanationRead {
		return false, nil
	}
	e.Status = models.ExplanationRead
	e.ReadAt = &readAt
	return true, nil
}
