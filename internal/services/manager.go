package services

import (
	"log/slog"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/cache"
	"github.com/carvajal-autotech/quiz-service/internal/events"
	"github.com/carvajal-autotech/quiz-service/internal/monitoring"
	"github.com/carvajal-autotech/quiz-service/internal/quiz"
	"github.com/carvajal-autotech/quiz-service/internal/repositories"
	"github.com/carvajal-autotech/quiz-service/internal/storage"
	"github.com/carvajal-autotech/quiz-service/internal/validator"
)

// ServiceManager hands out the service singletons to the HTTP layer.
type ServiceManager interface {
	Identity() IdentityService
	Catalog() CatalogService
	Publication() PublicationService
	Quiz() QuizService
	Export() ExportService
	Overview() OverviewService
	Refresher() *Refresher
}

// Dependencies is everything the services are built from.
type Dependencies struct {
	Repo      repositories.Repository
	Cache     cache.CacheService
	Publisher events.EventPublisher
	Storage   storage.Provider
	Metrics   *monitoring.Metrics
	Validator *validator.Validator
	Tokens    *TokenIssuer
	// External is nil unless an external identity provider is configured.
	External ExternalVerifier

	Engine          quiz.Config
	OverviewTTL     time.Duration
	RefreshInterval time.Duration

	Logger *slog.Logger
}

type serviceManager struct {
	identity    IdentityService
	catalog     CatalogService
	publication PublicationService
	quiz        QuizService
	export      ExportService
	overview    OverviewService
	refresher   *Refresher
}

func NewServiceManager(deps Dependencies) ServiceManager {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.OverviewTTL <= 0 {
		// Snapshots outlive one missed refresh cycle.
		deps.OverviewTTL = 2 * deps.RefreshInterval
	}

	quizService := NewQuizService(deps.Repo, deps.Cache, deps.Publisher, deps.Metrics, deps.Engine, deps.Logger)
	publication := NewPublicationService(deps.Repo, deps.Cache, quizService, deps.Publisher, deps.Validator, deps.Logger)
	overview := NewOverviewService(deps.Repo, deps.Cache, deps.OverviewTTL, deps.Logger)

	return &serviceManager{
		identity:    NewIdentityService(deps.Repo, deps.Cache, deps.Tokens, deps.External, deps.Validator, deps.Logger),
		catalog:     NewCatalogService(deps.Repo, deps.Storage, deps.Validator, deps.Logger),
		publication: publication,
		quiz:        quizService,
		export:      NewExportService(deps.Repo, deps.Logger),
		overview:    overview,
		refresher:   NewRefresher(overview, publication, deps.RefreshInterval, deps.Logger),
	}
}

func (m *serviceManager) Identity() IdentityService       { return m.identity }
func (m *serviceManager) Catalog() CatalogService         { return m.catalog }
func (m *serviceManager) Publication() PublicationService { return m.publication }
func (m *serviceManager) Quiz() QuizService               { return m.quiz }
func (m *serviceManager) Export() ExportService           { return m.export }
func (m *serviceManager) Overview() OverviewService       { return m.overview }
func (m *serviceManager) Refresher() *Refresher           { return m.refresher }
