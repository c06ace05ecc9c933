package commission

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nexavest/nexavest-backend/internal/repo"
	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
)

// Repository persists commission records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// FindUnpaidFirstCycle pages positions that finished their first cycle,
	// match the allowed statuses and have no commission record of the type.
	FindUnpaidFirstCycle(ctx context.Context, statuses []enums.PositionStatus, commissionType enums.CommissionType, limit int) ([]models.Position, error)
	// Insert writes the record unless the (receiver, position, type, period)
	// tuple already exists. The bool reports whether a row was inserted.
	Insert(ctx context.Context, record *models.CommissionRecord) (bool, error)
	ListByReceiver(ctx context.Context, receiverID uuid.UUID) ([]models.CommissionRecord, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a commission repository on the shared base.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) FindUnpaidFirstCycle(ctx context.Context, statuses []enums.PositionStatus, commissionType enums.CommissionType, limit int) ([]models.Position, error) {
	var positions []models.Position
	err := r.DB(ctx).
		Preload("PackageTerm").
		Where("first_cycle_completed = ?", true).
		Where("status IN ?", statuses).
		Where(`NOT EXISTS (
			SELECT 1 FROM commission_records cr
			WHERE cr.position_id = positions.id AND cr.type = ?
		)`, commissionType).
		Order("created_at ASC").
		Limit(limit).
		Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func (r *repository) Insert(ctx context.Context, record *models.CommissionRecord) (bool, error) {
	result := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "receiver_id"}, {Name: "position_id"}, {Name: "type"}, {Name: "period"},
			},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListByReceiver(ctx context.Context, receiverID uuid.UUID) ([]models.CommissionRecord, error) {
	var records []models.CommissionRecord
	err := r.DB(ctx).
		Where("receiver_id = ?", receiverID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
