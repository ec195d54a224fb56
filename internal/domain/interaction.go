package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Interaction is one protein-protein interaction record to classify.
type Interaction struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ProteinA string `gorm:"column:protein_a;not null;index" json:"protein_a"`
	ProteinB string `gorm:"column:protein_b;not null;index" json:"protein_b"`

	// Free-text functional annotations used as classification context.
	AnnotationA string `gorm:"column:annotation_a;type:text" json:"annotation_a,omitempty"`
	AnnotationB string `gorm:"column:annotation_b;type:text" json:"annotation_b,omitempty"`

	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Interaction) TableName() string { return "interaction" }

// Assignment sources.
const (
	AssignmentSourceCoarse     = "coarse"
	AssignmentSourceRefinement = "refinement"
	AssignmentSourceFallback   = "fallback"
)

// PathwayInteraction assigns one interaction to exactly one pathway node.
// The unique index on interaction_id is the invariant: one row per
// interaction.
type PathwayInteraction struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	InteractionID uuid.UUID `gorm:"type:uuid;column:interaction_id;not null;uniqueIndex:idx_pathway_interaction_interaction" json:"interaction_id"`
	PathwayID     uuid.UUID `gorm:"type:uuid;column:pathway_id;not null;index" json:"pathway_id"`

	// RawName is the free-text name the coarse pass produced, kept for audit.
	RawName    string  `gorm:"column:raw_name" json:"raw_name,omitempty"`
	Confidence float64 `gorm:"column:confidence;not null;default:0" json:"confidence"`
	Source     string  `gorm:"column:source;not null;default:'coarse'" json:"source"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (PathwayInteraction) TableName() string { return "pathway_interaction" }
