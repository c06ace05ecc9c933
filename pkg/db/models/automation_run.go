package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nexavest/nexavest-backend/pkg/enums"
)

// AutomationRun is the execution record for one scheduled or manual job run.
// A row stuck in running state marks a crashed run, distinguishing it from
// "nothing to do".
type AutomationRun struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	JobName          string            `gorm:"column:job_name;not null;index"`
	Category         string            `gorm:"column:category;not null"`
	TriggerType      enums.TriggerType `gorm:"column:trigger_type;type:trigger_type;not null"`
	Status           enums.RunStatus   `gorm:"column:status;type:run_status;not null;default:'running';index"`
	StartedAt        time.Time         `gorm:"column:started_at;not null"`
	FinishedAt       *time.Time        `gorm:"column:finished_at"`
	DurationMS       int64             `gorm:"column:duration_ms;not null;default:0"`
	RecordsProcessed int               `gorm:"column:records_processed;not null;default:0"`
	Error            *string           `gorm:"column:error"`
	Metadata         json.RawMessage   `gorm:"column:metadata;type:jsonb"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
}
