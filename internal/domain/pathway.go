package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Pathway node kinds. Root nodes come from the configured root category set
// and are never created or deleted by the pipeline.
const (
	PathwayKindRoot    = "root"
	PathwayKindMain    = "main"
	PathwayKindSibling = "sibling"
)

// Provenance values recorded on pathway nodes.
const (
	ProvenanceOntology     = "ontology"
	ProvenanceOracle       = "oracle"
	ProvenanceOrphanRepair = "orphan-repair"
	ProvenanceHistoryReuse = "history-reuse"
)

// LevelPending marks a node created eagerly by interaction assignment
// before chain-building has placed it under a root.
const LevelPending = -1

type Pathway struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Name string `gorm:"column:name;not null;uniqueIndex:idx_pathway_name" json:"name"`
	Kind string `gorm:"column:kind;not null;default:'main';index" json:"kind"`

	// Level is the distance from the nearest root along the shortest known
	// parent path. LevelPending until chain-building places the node.
	Level  int  `gorm:"column:level;not null;default:-1" json:"level"`
	IsLeaf bool `gorm:"column:is_leaf;not null;default:true" json:"is_leaf"`

	// OriginChain is the root->self name sequence that produced this node.
	// Null for nodes created by sibling expansion alone.
	OriginChain datatypes.JSON `gorm:"column:origin_chain;type:jsonb" json:"origin_chain,omitempty"`

	Confidence float64 `gorm:"column:confidence;not null;default:0" json:"confidence"`
	Provenance string  `gorm:"column:provenance;not null;default:'oracle'" json:"provenance"`

	// OntologyID is the external term code (e.g. a GO id) for scaffold nodes.
	OntologyID string `gorm:"column:ontology_id;index" json:"ontology_id,omitempty"`

	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Pathway) TableName() string { return "pathway" }

// PathwayParent is a child->parent edge. A node may have multiple parents,
// forming a DAG. IsPrimaryChain marks the edge as part of the authoritative
// chain that rooted the child.
type PathwayParent struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ChildID  uuid.UUID `gorm:"type:uuid;column:child_id;not null;index;uniqueIndex:idx_pathway_parent_pair,priority:1" json:"child_id"`
	ParentID uuid.UUID `gorm:"type:uuid;column:parent_id;not null;index;uniqueIndex:idx_pathway_parent_pair,priority:2" json:"parent_id"`

	RelationshipKind string  `gorm:"column:relationship_kind;not null;default:'is-a'" json:"relationship_kind"`
	Confidence       float64 `gorm:"column:confidence;not null;default:0" json:"confidence"`
	IsPrimaryChain   bool    `gorm:"column:is_primary_chain;not null;default:false" json:"is_primary_chain"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (PathwayParent) TableName() string { return "pathway_parent" }

// PathwayCanonicalName maps a raw oracle-suggested name to its canonical
// form. A canonical name maps to itself. Rows are append-only: re-running
// normalization may add mappings but never rewrites resolved ones.
type PathwayCanonicalName struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	RawName       string `gorm:"column:raw_name;not null;uniqueIndex:idx_canonical_raw_name" json:"raw_name"`
	CanonicalName string `gorm:"column:canonical_name;not null;index" json:"canonical_name"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (PathwayCanonicalName) TableName() string { return "pathway_canonical_name" }

// Chain history sources.
const (
	ChainSourceOracle   = "oracle-built"
	ChainSourceHistory  = "history-reuse"
	ChainSourceAttached = "attached-to-existing"
)

// PathwayChainHistory caches the root->name chain built for a canonical
// name so later runs can skip the oracle. Chain[0] must be a current root
// name and Chain[len-1] must equal CanonicalName.
type PathwayChainHistory struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	CanonicalName string         `gorm:"column:canonical_name;not null;uniqueIndex:idx_chain_history_name" json:"canonical_name"`
	Chain         datatypes.JSON `gorm:"column:chain;type:jsonb;not null" json:"chain"`
	Source        string         `gorm:"column:source;not null;default:'oracle-built'" json:"source"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (PathwayChainHistory) TableName() string { return "pathway_chain_history" }
