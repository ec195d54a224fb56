package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Checkpoint statuses.
const (
	CheckpointStatusDone   = "done"
	CheckpointStatusFailed = "failed"
)

// PipelineCheckpoint is the completed-unit-of-work ledger. One row per
// (stage, unit) processed, upserted idempotently, so an interrupted run can
// resume by skipping units already marked done.
type PipelineCheckpoint struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Stage   string `gorm:"column:stage;not null;uniqueIndex:idx_checkpoint_stage_unit,priority:1" json:"stage"`
	UnitKey string `gorm:"column:unit_key;not null;uniqueIndex:idx_checkpoint_stage_unit,priority:2" json:"unit_key"`

	Status string         `gorm:"column:status;not null;default:'done'" json:"status"`
	Detail datatypes.JSON `gorm:"column:detail;type:jsonb" json:"detail,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (PipelineCheckpoint) TableName() string { return "pipeline_checkpoint" }
