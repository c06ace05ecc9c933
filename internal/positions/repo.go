package positions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/internal/repo"
	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
)

// Repository persists positions and the package term catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, position *models.Position) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Position, error)
	// FindDueForAccrual pages through active positions whose next accrual
	// time has passed, oldest first.
	FindDueForAccrual(ctx context.Context, now time.Time, limit int) ([]models.Position, error)
	// FindByOwners lists positions that have started accruing for the given
	// owners. Completed positions are included so late bonus passes can still
	// settle earned weeks; pending and cancelled positions are excluded.
	FindByOwners(ctx context.Context, ownerIDs []uuid.UUID) ([]models.Position, error)
	Save(ctx context.Context, position *models.Position) error
	FindTerm(ctx context.Context, id uuid.UUID) (*models.PackageTerm, error)
	CreateTerm(ctx context.Context, term *models.PackageTerm) error
}

type repository struct {
	repo.Base
}

// NewRepository builds a position repository on the shared base.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, position *models.Position) error {
	return r.DB(ctx).Create(position).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Position, error) {
	var position models.Position
	err := r.DB(ctx).
		Preload("PackageTerm").
		First(&position, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &position, nil
}

func (r *repository) FindDueForAccrual(ctx context.Context, now time.Time, limit int) ([]models.Position, error) {
	var positions []models.Position
	err := r.DB(ctx).
		Preload("PackageTerm").
		Where("status = ?", enums.PositionStatusActive).
		Where("next_accrual_at IS NOT NULL AND next_accrual_at <= ?", now).
		Order("next_accrual_at ASC").
		Limit(limit).
		Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func (r *repository) FindByOwners(ctx context.Context, ownerIDs []uuid.UUID) ([]models.Position, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	var positions []models.Position
	err := r.DB(ctx).
		Preload("PackageTerm").
		Where("user_id IN ?", ownerIDs).
		Where("status IN ?", []enums.PositionStatus{
			enums.PositionStatusActive,
			enums.PositionStatusPaused,
			enums.PositionStatusCompleted,
		}).
		Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func (r *repository) Save(ctx context.Context, position *models.Position) error {
	return r.DB(ctx).Save(position).Error
}

func (r *repository) FindTerm(ctx context.Context, id uuid.UUID) (*models.PackageTerm, error) {
	var term models.PackageTerm
	if err := r.DB(ctx).First(&term, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &term, nil
}

func (r *repository) CreateTerm(ctx context.Context, term *models.PackageTerm) error {
	return r.DB(ctx).Create(term).Error
}
