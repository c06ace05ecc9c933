package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nexavest/nexavest-backend/pkg/enums"
)

// SpecialAccount assigns the leader or parent bonus role to a user. A partial
// unique index on (role) WHERE active enforces the single-leader and
// single-parent invariant at the storage layer.
type SpecialAccount struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Role      enums.SpecialRole `gorm:"column:role;type:special_role;not null"`
	Code      string            `gorm:"column:code;not null;unique"`
	Active    bool              `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
