package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexavest/nexavest-backend/pkg/enums"
)

// CommissionRecord is the denormalized history entry for a paid commission or
// bonus, linking the receiver, the source position and the realizing ledger
// entry. The (receiver, position, type, period) tuple is unique; period is
// empty for one-shot commissions and "w<N>" for weekly bonuses.
type CommissionRecord struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	ReceiverID    uuid.UUID              `gorm:"column:receiver_id;type:uuid;not null;index;uniqueIndex:idx_commission_unique,priority:1"`
	PositionID    uuid.UUID              `gorm:"column:position_id;type:uuid;not null;uniqueIndex:idx_commission_unique,priority:2"`
	Type          enums.CommissionType   `gorm:"column:type;type:commission_type;not null;uniqueIndex:idx_commission_unique,priority:3"`
	Period        string                 `gorm:"column:period;not null;default:'';uniqueIndex:idx_commission_unique,priority:4"`
	Amount        decimal.Decimal        `gorm:"column:amount;type:numeric(20,8);not null"`
	LedgerEntryID uuid.UUID              `gorm:"column:ledger_entry_id;type:uuid;not null"`
	Status        enums.CommissionStatus `gorm:"column:status;type:commission_status;not null;default:'paid'"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
}
