package prompts

// InteractionContext is one interaction rendered for a prompt.
type InteractionContext struct {
	Index       int
	ProteinA    string
	ProteinB    string
	AnnotationA string
	AnnotationB string
}

// Input carries everything a prompt template may reference. Unused fields
// render as zero values (missingkey=zero).
type Input struct {
	// Assignment + chain building
	Interactions []InteractionContext
	PathwayName  string

	// Normalization
	ClusterMembers []string

	// Closed vocabulary for refinement
	CandidateNames []string

	// Fixed root category names
	RootCategories []string

	// Sibling expansion
	ParentName       string
	MainChildName    string
	ExistingChildren []string
	MaxSiblings      int

	// Structural cap for chain building
	MaxDepth int
}
