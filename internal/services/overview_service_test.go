package services

import (
	"context"
	"testing"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/cache"
	"github.com/carvajal-autotech/quiz-service/internal/events"
	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOverviewService_StudentOverview(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	admin := store.addUser("admin-1", models.RoleAdmin)
	student := store.addUser(testStudent, models.RoleStudent)
	brakes := store.addCategory("Brakes")
	engines := store.addCategory("Engines")
	question := store.addQuestion(brakes.ID, models.TrueFalse, models.TrueFalseOptions, "A", nil)
	store.addQuestion(brakes.ID, models.TrueFalse, models.TrueFalseOptions, "B", nil)
	store.addAssignment(testStudent, brakes.ID)
	store.addAssignment(testStudent, engines.ID)

	correct := true
	_, err := store.Answer().CreateIfAbsent(ctx, nil, &models.StudentAnswer{StudentID: testStudent, QuestionID: question.ID, Answer: "A", IsCorrect: &correct})
	require.NoError(t, err)

	cacheService := cache.NewMemoryCache()
	service := NewOverviewService(store, cacheService, time.Minute, discardLogger())

	overview, err := service.StudentOverview(ctx, admin, testStudent)
	require.NoError(t, err)
	assert.Equal(t, student.ID, overview.Student.ID)
	require.Len(t, overview.Assignments, 2)

	first := overview.Assignments[0]
	assert.Equal(t, "Brakes", first.CategoryName)
	assert.Equal(t, 1, first.AnsweredCount)
	assert.Equal(t, 2, first.TotalQuestions)
	require.NotNil(t, first.Stats)
	assert.Equal(t, 50, first.Stats.AccuracyPercent)
	assert.Nil(t, overview.Assignments[1].Stats)

	// Served from cache while the store is down.
	store.setDown(true)
	cached, err := service.StudentOverview(ctx, admin, testStudent)
	require.NoError(t, err)
	assert.Len(t, cached.Assignments, 2)
	assert.True(t, overview.RefreshedAt.Equal(cached.RefreshedAt))

	require.NoError(t, cacheService.Delete(ctx, cache.OverviewKey(testStudent)))
	_, err = service.StudentOverview(ctx, admin, testStudent)
	assert.True(t, IsUnavailable(err))

	_, err = service.StudentOverview(ctx, student, testStudent)
	assert.True(t, IsForbidden(err))
}

func TestOverviewService_RefreshAll(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	category := store.addCategory("Brakes")
	for _, id := range []string{"s-1", "s-2"} {
		store.addUser(id, models.RoleStudent)
		store.addAssignment(id, category.ID)
	}
	// An assignment whose user row is gone is skipped.
	store.addAssignment("orphan", category.ID)

	cacheService := cache.NewMemoryCache()
	service := NewOverviewService(store, cacheService, time.Minute, discardLogger())

	refreshed, err := service.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed)

	for _, id := range []string{"s-1", "s-2"} {
		exists, err := cacheService.Exists(ctx, cache.OverviewKey(id))
		require.NoError(t, err)
		assert.True(t, exists, id)
	}

	store.setDown(true)
	refreshed, err = service.RefreshAll(ctx)
	assert.True(t, IsUnavailable(err))
	assert.Zero(t, refreshed)
}

func TestRefresher_RunOnceSyncsPendingBundles(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	admin := store.addUser("admin-1", models.RoleAdmin)
	store.addUser(testStudent, models.RoleStudent)
	category := store.addCategory("Brakes")
	store.addAssignment(testStudent, category.ID)

	cacheService := cache.NewMemoryCache()
	closer := new(mockSessionCloser)
	closer.On("CloseSession", mock.Anything, testStudent, category.ID).Return()
	publication := NewPublicationService(store, cacheService, closer, events.NewMockEventPublisher(discardLogger()), validator.New(), discardLogger())
	overview := NewOverviewService(store, cacheService, time.Minute, discardLogger())

	store.setDown(true)
	_, err := publication.SendExplanations(ctx, admin, testStudent, category.ID, explanationRequest())
	require.ErrorIs(t, err, ErrExplanationsUnsynced)
	store.setDown(false)

	NewRefresher(overview, publication, time.Hour, discardLogger()).RunOnce(ctx)

	stored, err := store.Explanation().Get(ctx, nil, testStudent, category.ID)
	require.NoError(t, err)
	assert.Equal(t, "Brakes", stored.CategoryName)

	snapshot, err := overview.StudentOverview(ctx, admin, testStudent)
	require.NoError(t, err)
	require.Len(t, snapshot.Assignments, 1)
	require.NotNil(t, snapshot.Assignments[0].ExplanationStatus)
	assert.Equal(t, models.ExplanationSent, *snapshot.Assignments[0].ExplanationStatus)
	assert.False(t, snapshot.Assignments[0].Mode)
}
