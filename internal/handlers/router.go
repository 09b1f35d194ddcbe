package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"github.com/carvajal-autotech/quiz-service/internal/monitoring"
	"github.com/carvajal-autotech/quiz-service/internal/services"
	"github.com/carvajal-autotech/quiz-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing store is reachable.
type Pinger func(ctx context.Context) error

type RouterOptions struct {
	Metrics            *monitoring.Metrics
	LoginRatePerMinute int
	// Health checks run by GET /health, keyed by component name.
	Health map[string]Pinger
}

type HandlerManager struct {
	authHandler    *AuthHandler
	quizHandler    *QuizHandler
	catalogHandler *CatalogHandler
	adminHandler   *AdminHandler

	identity     services.IdentityService
	loginLimiter *RateLimiter
	options      RouterOptions
	logger       utils.Logger
}

func NewHandlerManager(serviceManager services.ServiceManager, logger utils.Logger, options RouterOptions) *HandlerManager {
	return &HandlerManager{
		authHandler:    NewAuthHandler(serviceManager.Identity(), logger),
		quizHandler:    NewQuizHandler(serviceManager.Quiz(), serviceManager.Publication(), logger),
		catalogHandler: NewCatalogHandler(serviceManager.Catalog(), logger),
		adminHandler: NewAdminHandler(
			serviceManager.Identity(),
			serviceManager.Publication(),
			serviceManager.Quiz(),
			serviceManager.Overview(),
			serviceManager.Export(),
			logger,
		),
		identity:     serviceManager.Identity(),
		loginLimiter: NewRateLimiter(options.LoginRatePerMinute, time.Minute),
		options:      options,
		logger:       logger,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.Use(utils.ContextLogger(hm.logger), utils.LoggerMiddleware(hm.logger))
	if hm.options.Metrics != nil {
		router.Use(hm.options.Metrics.MetricsMiddleware())
		router.GET("/metrics", hm.options.Metrics.PrometheusHandler())
	}
	router.GET("/health", hm.HealthCheck)

	auth := AuthMiddleware(hm.identity, hm.logger)
	v1 := router.Group("/api/v1")

	// Auth routes
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", hm.loginLimiter.Middleware(), hm.authHandler.Register)
		authGroup.POST("/login", hm.loginLimiter.Middleware(), hm.authHandler.Login)
		authGroup.POST("/logout", auth, hm.authHandler.Logout)
		authGroup.GET("/me", auth, hm.authHandler.Me)
		authGroup.PUT("/profile", auth, hm.authHandler.UpdateProfile)
	}

	// Shared catalog reads; the service narrows what students see
	categories := v1.Group("/categories", auth)
	{
		categories.GET("", hm.catalogHandler.ListCategories)
		categories.GET("/:id", hm.catalogHandler.GetCategory)
	}

	// Student routes
	student := v1.Group("", auth, RequireRole(models.RoleStudent))
	{
		student.GET("/me/assignments", hm.quizHandler.MyAssignments)

		quiz := student.Group("/quiz/:category_id")
		{
			quiz.GET("", hm.quizHandler.Snapshot)
			quiz.GET("/resume", hm.quizHandler.ResumeState)
			quiz.POST("/start", hm.quizHandler.Start)
			quiz.POST("/answer", hm.quizHandler.SubmitAnswer)
			quiz.POST("/next", hm.quizHandler.Next)
			quiz.POST("/previous", hm.quizHandler.Previous)
			quiz.POST("/pause", hm.quizHandler.Pause)
			quiz.POST("/resume", hm.quizHandler.Resume)
			quiz.POST("/complete", hm.quizHandler.Complete)
			quiz.POST("/sync", hm.quizHandler.RetrySync)
			quiz.POST("/abandon", hm.quizHandler.Abandon)
			quiz.GET("/results", hm.quizHandler.Results)
		}

		student.GET("/explanations/:category_id", hm.quizHandler.Explanations)
		student.POST("/explanations/:category_id/read", hm.quizHandler.MarkExplanationsRead)
	}

	// Admin routes
	admin := v1.Group("/admin", auth, RequireRole(models.RoleAdmin))
	{
		adminCategories := admin.Group("/categories")
		{
			adminCategories.POST("", hm.catalogHandler.CreateCategory)
			adminCategories.PUT("/:id", hm.catalogHandler.UpdateCategory)
			adminCategories.DELETE("/:id", hm.catalogHandler.DeleteCategory)
			adminCategories.GET("/:id/questions", hm.catalogHandler.ListQuestions)
		}

		questions := admin.Group("/questions")
		{
			questions.POST("", hm.catalogHandler.CreateQuestion)
			questions.GET("/:id", hm.catalogHandler.GetQuestion)
			questions.PUT("/:id", hm.catalogHandler.UpdateQuestion)
			questions.DELETE("/:id", hm.catalogHandler.DeleteQuestion)
			questions.POST("/:id/image", hm.catalogHandler.UploadQuestionImage)
		}

		students := admin.Group("/students")
		{
			students.GET("", hm.adminHandler.ListStudents)
			students.GET("/:id/categories", hm.adminHandler.StudentAssignments)
			students.GET("/:id/overview", hm.adminHandler.StudentOverview)
			students.GET("/:id/export", hm.adminHandler.ExportStudentResults)

			pair := students.Group("/:id/categories/:category_id")
			{
				pair.POST("", hm.adminHandler.Assign)
				pair.DELETE("", hm.adminHandler.Unassign)
				pair.POST("/mode", hm.adminHandler.ToggleMode)
				pair.POST("/published", hm.adminHandler.SetPublished)
				pair.POST("/explanations", hm.adminHandler.SendExplanations)
				pair.GET("/explanations", hm.adminHandler.GetExplanations)
				pair.POST("/reset", hm.adminHandler.ResetAttempt)
				pair.GET("/results", hm.adminHandler.StudentResults)
			}
		}
	}
}

// HealthCheck pings every registered component. Any failure answers 503.
func (hm *HandlerManager) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	components := make(gin.H, len(hm.options.Health))
	for name, ping := range hm.options.Health {
		if err := ping(ctx); err != nil {
			hm.logger.Warn("Health check failed", "component", name, "error", err)
			components[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":     overall,
		"service":    "quiz-service",
		"components": components,
	})
}
