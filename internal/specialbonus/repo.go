package specialbonus

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/internal/repo"
	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
)

// Repository persists special account assignments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.SpecialAccount) error
	Save(ctx context.Context, account *models.SpecialAccount) error
	ListActive(ctx context.Context) ([]models.SpecialAccount, error)
	FindActiveByRole(ctx context.Context, role enums.SpecialRole) (*models.SpecialAccount, error)
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.SpecialAccount, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a special account repository on the shared base.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, account *models.SpecialAccount) error {
	return r.DB(ctx).Create(account).Error
}

func (r *repository) Save(ctx context.Context, account *models.SpecialAccount) error {
	return r.DB(ctx).Save(account).Error
}

func (r *repository) ListActive(ctx context.Context) ([]models.SpecialAccount, error) {
	var accounts []models.SpecialAccount
	err := r.DB(ctx).
		Where("active = ?", true).
		Order("created_at ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repository) FindActiveByRole(ctx context.Context, role enums.SpecialRole) (*models.SpecialAccount, error) {
	var account models.SpecialAccount
	err := r.DB(ctx).
		Where("role = ? AND active = ?", role, true).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.SpecialAccount, error) {
	var account models.SpecialAccount
	err := r.DB(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}
