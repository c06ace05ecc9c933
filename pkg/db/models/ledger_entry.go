package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexavest/nexavest-backend/pkg/enums"
)

// LedgerEntry records one immutable credit or debit. The idempotency key
// carries a uniqueness constraint: re-applying the same logical movement is
// rejected by the database, not by application bookkeeping.
type LedgerEntry struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	Amount         decimal.Decimal         `gorm:"column:amount;type:numeric(20,8);not null"`
	Direction      enums.LedgerDirection   `gorm:"column:direction;type:ledger_direction;not null"`
	Kind           enums.LedgerEntryKind   `gorm:"column:kind;type:ledger_entry_kind;not null;index"`
	Bucket         enums.BalanceBucket     `gorm:"column:bucket;type:balance_bucket;not null"`
	IdempotencyKey string                  `gorm:"column:idempotency_key;not null;uniqueIndex"`
	SourceRef      string                  `gorm:"column:source_ref;index"`
	Status         enums.LedgerEntryStatus `gorm:"column:status;type:ledger_entry_status;not null;default:'completed';index"`
	Note           string                  `gorm:"column:note"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime;index"`
}
