package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PackageTerm is one row of the investment package catalog. Terms are frozen
// onto the position at purchase time via the package reference.
type PackageTerm struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name              string          `gorm:"column:name;not null;unique"`
	DailyRate         decimal.Decimal `gorm:"column:daily_rate;type:numeric(10,6);not null"`
	DaysPerCycle      int             `gorm:"column:days_per_cycle;not null"`
	PauseDays         int             `gorm:"column:pause_days;not null;default:0"`
	TotalCycles       int             `gorm:"column:total_cycles;not null"`
	TotalDurationDays int             `gorm:"column:total_duration_days;not null"`
	ReferralRate      decimal.Decimal `gorm:"column:referral_rate;type:numeric(10,6);not null;default:0"`
	MinPrincipal      decimal.Decimal `gorm:"column:min_principal;type:numeric(20,8);not null;default:0"`
	MaxPrincipal      decimal.Decimal `gorm:"column:max_principal;type:numeric(20,8);not null;default:0"`
	Active            bool            `gorm:"column:active;not null;default:true"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// MaxTheoreticalPayout is the cap on accrued returns for the given principal.
func (p PackageTerm) MaxTheoreticalPayout(principal decimal.Decimal) decimal.Decimal {
	days := decimal.NewFromInt(int64(p.DaysPerCycle * p.TotalCycles))
	return principal.Mul(p.DailyRate).Mul(days)
}
