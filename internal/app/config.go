package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/biopath-backend/internal/platform/envutil"
)

// RootCategory is one fixed top-level pathway category. The set is loaded
// from config and never mutated by the pipeline.
type RootCategory struct {
	Name       string `yaml:"name"`
	OntologyID string `yaml:"ontology_id"`
}

type Config struct {
	Env string `yaml:"env"`

	// Root category set. FallbackRoot must name a member; orphan-root repair
	// reparents stray level-0 nodes under it.
	Roots        []RootCategory `yaml:"roots"`
	FallbackRoot string         `yaml:"fallback_root"`

	// Structural caps.
	MaxHierarchyDepth   int `yaml:"max_hierarchy_depth"`
	MaxSiblingsPerLevel int `yaml:"max_siblings_per_level"`

	// Matching and confidence thresholds.
	FuzzyMatchThreshold      float64 `yaml:"fuzzy_match_threshold"`
	MinConfidenceAssignment  float64 `yaml:"min_confidence_assignment"`
	MinConfidenceHierarchy   float64 `yaml:"min_confidence_hierarchy"`
	MinConfidenceRefinement  float64 `yaml:"min_confidence_refinement"`
	OrphanRepairedConfidence float64 `yaml:"orphan_repaired_confidence"`

	// Batch sizes per stage.
	CoarseBatchSize        int `yaml:"coarse_batch_size"`
	NormalizeBatchSize     int `yaml:"normalize_batch_size"`
	RefinementBatchSize    int `yaml:"refinement_batch_size"`
	EvidenceBatchSize      int `yaml:"evidence_batch_size"`
	CoarseWorkers          int `yaml:"coarse_workers"`
	EvidenceWorkers        int `yaml:"evidence_workers"`
	ChainContextSampleSize int `yaml:"chain_context_sample_size"`

	// Policy flags (see DESIGN.md).
	AttachFromPersistedChains bool `yaml:"attach_from_persisted_chains"`
	RejectBelowConfidence     bool `yaml:"reject_below_confidence"`
	PruneDeadNodes            bool `yaml:"prune_dead_nodes"`
}

// DefaultRoots is the reference root category set with GO term codes.
func DefaultRoots() []RootCategory {
	return []RootCategory{
		{Name: "Cellular Signaling", OntologyID: "GO:0007165"},
		{Name: "Metabolism", OntologyID: "GO:0008152"},
		{Name: "Protein Quality Control", OntologyID: "GO:0006457"},
		{Name: "Cell Death", OntologyID: "GO:0008219"},
		{Name: "Cell Cycle", OntologyID: "GO:0007049"},
		{Name: "DNA Damage Response", OntologyID: "GO:0006974"},
		{Name: "Vesicle Transport", OntologyID: "GO:0016192"},
		{Name: "Immune Response", OntologyID: "GO:0006955"},
		{Name: "Neuronal Function", OntologyID: "GO:0050877"},
		{Name: "Cytoskeleton Organization", OntologyID: "GO:0007010"},
		{Name: "Transcriptional Regulation", OntologyID: "GO:0006355"},
		{Name: "Chromatin Organization", OntologyID: "GO:0006325"},
	}
}

func DefaultConfig() *Config {
	return &Config{
		Env:                      "dev",
		Roots:                    DefaultRoots(),
		FallbackRoot:             "Protein Quality Control",
		MaxHierarchyDepth:        10,
		MaxSiblingsPerLevel:      10,
		FuzzyMatchThreshold:      0.70,
		MinConfidenceAssignment:  0.70,
		MinConfidenceHierarchy:   0.80,
		MinConfidenceRefinement:  0.70,
		OrphanRepairedConfidence: 0.5,
		CoarseBatchSize:          50,
		NormalizeBatchSize:       20,
		RefinementBatchSize:      5,
		EvidenceBatchSize:        3,
		CoarseWorkers:            3,
		EvidenceWorkers:          3,
		ChainContextSampleSize:   5,
		PruneDeadNodes:           true,
	}
}

// Load reads the YAML config at path (optional) and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Env = envutil.Str("APP_ENV", cfg.Env)
	cfg.MaxHierarchyDepth = envutil.Int("PATHWAY_MAX_HIERARCHY_DEPTH", cfg.MaxHierarchyDepth)
	cfg.MaxSiblingsPerLevel = envutil.Int("PATHWAY_MAX_SIBLINGS_PER_LEVEL", cfg.MaxSiblingsPerLevel)
	cfg.FuzzyMatchThreshold = envutil.Float("PATHWAY_FUZZY_MATCH_THRESHOLD", cfg.FuzzyMatchThreshold)
	cfg.CoarseBatchSize = envutil.Int("PATHWAY_COARSE_BATCH_SIZE", cfg.CoarseBatchSize)
	cfg.NormalizeBatchSize = envutil.Int("PATHWAY_NORMALIZE_BATCH_SIZE", cfg.NormalizeBatchSize)
	cfg.RefinementBatchSize = envutil.Int("PATHWAY_REFINEMENT_BATCH_SIZE", cfg.RefinementBatchSize)
	cfg.EvidenceBatchSize = envutil.Int("PATHWAY_EVIDENCE_BATCH_SIZE", cfg.EvidenceBatchSize)
	cfg.CoarseWorkers = envutil.Int("PATHWAY_COARSE_WORKERS", cfg.CoarseWorkers)
	cfg.EvidenceWorkers = envutil.Int("PATHWAY_EVIDENCE_WORKERS", cfg.EvidenceWorkers)
	cfg.AttachFromPersistedChains = envutil.Bool("PATHWAY_ATTACH_FROM_PERSISTED_CHAINS", cfg.AttachFromPersistedChains)
	cfg.RejectBelowConfidence = envutil.Bool("PATHWAY_REJECT_BELOW_CONFIDENCE", cfg.RejectBelowConfidence)
	cfg.PruneDeadNodes = envutil.Bool("PATHWAY_PRUNE_DEAD_NODES", cfg.PruneDeadNodes)

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("config: at least one root category required")
	}
	seen := map[string]bool{}
	for _, r := range c.Roots {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return fmt.Errorf("config: root category with empty name")
		}
		if seen[name] {
			return fmt.Errorf("config: duplicate root category %q", name)
		}
		seen[name] = true
	}
	if !seen[strings.TrimSpace(c.FallbackRoot)] {
		return fmt.Errorf("config: fallback_root %q is not a configured root", c.FallbackRoot)
	}
	if c.MaxHierarchyDepth <= 1 {
		return fmt.Errorf("config: max_hierarchy_depth must be > 1")
	}
	if c.RefinementBatchSize <= 0 || c.CoarseBatchSize <= 0 {
		return fmt.Errorf("config: batch sizes must be positive")
	}
	if c.FuzzyMatchThreshold <= 0 || c.FuzzyMatchThreshold > 1 {
		return fmt.Errorf("config: fuzzy_match_threshold must be in (0,1]")
	}
	return nil
}

// RootNames returns the configured root names in declaration order.
func (c *Config) RootNames() []string {
	out := make([]string, 0, len(c.Roots))
	for _, r := range c.Roots {
		out = append(out, strings.TrimSpace(r.Name))
	}
	return out
}

// IsRoot reports whether name is one of the configured root categories.
func (c *Config) IsRoot(name string) bool {
	name = strings.TrimSpace(name)
	for _, r := range c.Roots {
		if strings.TrimSpace(r.Name) == name {
			return true
		}
	}
	return false
}
