package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexavest/nexavest-backend/pkg/enums"
)

// Position is one purchased investment license. CurrentCycle/CurrentDay double
// as the accrual resumption cursor: they advance only after the day's ledger
// entry exists, so a crashed run resumes without double-crediting.
type Position struct {
	ID                  uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID              uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	PackageTermID       uuid.UUID            `gorm:"column:package_term_id;type:uuid;not null"`
	Principal           decimal.Decimal      `gorm:"column:principal;type:numeric(20,8);not null"`
	Status              enums.PositionStatus `gorm:"column:status;type:position_status;not null;default:'pending';index"`
	CurrentCycle        int                  `gorm:"column:current_cycle;not null;default:1"`
	CurrentDay          int                  `gorm:"column:current_day;not null;default:1"`
	CycleStartedAt      *time.Time           `gorm:"column:cycle_started_at"`
	NextAccrualAt       *time.Time           `gorm:"column:next_accrual_at;index"`
	PausedUntil         *time.Time           `gorm:"column:paused_until"`
	FirstCycleCompleted bool                 `gorm:"column:first_cycle_completed;not null;default:false;index"`
	TotalCredited       decimal.Decimal      `gorm:"column:total_credited;type:numeric(20,8);not null;default:0"`
	ActivatedAt         *time.Time           `gorm:"column:activated_at"`
	CompletedAt         *time.Time           `gorm:"column:completed_at"`
	CreatedAt           time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time            `gorm:"column:updated_at;autoUpdateTime"`

	PackageTerm *PackageTerm `gorm:"foreignKey:PackageTermID"`
}

// AccruedDays returns how many daily accruals the position has received.
func (p Position) AccruedDays(daysPerCycle int) int {
	if daysPerCycle <= 0 {
		return 0
	}
	return (p.CurrentCycle-1)*daysPerCycle + (p.CurrentDay - 1)
}

// WeeksCompleted returns how many full seven-day accrual weeks have elapsed.
func (p Position) WeeksCompleted(daysPerCycle int) int {
	return p.AccruedDays(daysPerCycle) / 7
}
