package prompts

type PromptName string

const (
	// Assignment
	PromptCoarseAssign PromptName = "coarse_assign"
	PromptRefineAssign PromptName = "refine_assign"

	// Normalization
	PromptSynonymConfirm PromptName = "synonym_confirm"

	// Hierarchy
	PromptChainBuild    PromptName = "chain_build"
	PromptSiblingExpand PromptName = "sibling_expand"

	// Evidence validation
	PromptEvidenceEnrich PromptName = "evidence_enrich"
)
