package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexavest/nexavest-backend/pkg/enums"
)

// UserBalance is the derived per-user aggregate. Only the ledger service
// mutates it, inside the same transaction that inserts the ledger entry.
type UserBalance struct {
	UserID     uuid.UUID       `gorm:"column:user_id;type:uuid;primaryKey"`
	Available  decimal.Decimal `gorm:"column:available;type:numeric(20,8);not null;default:0"`
	Pending    decimal.Decimal `gorm:"column:pending;type:numeric(20,8);not null;default:0"`
	Frozen     decimal.Decimal `gorm:"column:frozen;type:numeric(20,8);not null;default:0"`
	Commission decimal.Decimal `gorm:"column:commission;type:numeric(20,8);not null;default:0"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Bucket returns the named sub-balance.
func (b UserBalance) Bucket(bucket enums.BalanceBucket) decimal.Decimal {
	switch bucket {
	case enums.BalanceBucketPending:
		return b.Pending
	case enums.BalanceBucketFrozen:
		return b.Frozen
	case enums.BalanceBucketCommission:
		return b.Commission
	default:
		return b.Available
	}
}
