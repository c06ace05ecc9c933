package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the account aggregate. ReferrerID is the precomputed single parent
// link resolved at registration time; the commission engine never walks the
// referral graph at payout time.
type User struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email          string     `gorm:"column:email;not null;unique"`
	Name           string     `gorm:"column:name;not null"`
	ReferralCode   string     `gorm:"column:referral_code;not null;unique"`
	ReferredByCode string     `gorm:"column:referred_by_code"`
	ReferrerID     *uuid.UUID `gorm:"column:referrer_id;type:uuid;index"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
