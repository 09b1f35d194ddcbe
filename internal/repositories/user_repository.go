package repositories

import (
	"context"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/models"
	"gorm.io/gorm"
)

// UserRepository interface for user operations
type UserRepository interface {
	Create(ctx context.Context, tx *gorm.DB, user *models.User) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.User, error)

	// UpdateProfile writes names only; email and role are never touched.
	UpdateProfile(ctx context.Context, tx *gorm.DB, id string, firstName, lastName *string) error
	UpdateLastLogin(ctx context.Context, tx *gorm.DB, id string, loginTime time.Time) error

	ExistsByEmail(ctx context.Context, tx *gorm.DB, email string) (bool, error)
	List(ctx context.Context, tx *gorm.DB, filters UserFilters) ([]*models.User, int64, error)
}
