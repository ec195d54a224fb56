package prompts

import "sync"

var registerOnce sync.Once

// RegisterAll installs every prompt spec. Safe to call more than once.
func RegisterAll() {
	registerOnce.Do(registerAll)
}

func registerAll() {
	RegisterSpec(Spec{
		Name:       PromptCoarseAssign,
		Version:    1,
		SchemaName: "coarse_assignments",
		Schema:     assignmentListSchema,
		System: `You are an expert in molecular and cellular biology.
Given protein-protein interactions, name the most specific biological pathway each interaction belongs to.
Use established pathway nomenclature. Do NOT answer with broad top-level categories such as:
{{range .RootCategories}}- {{.}}
{{end}}
Answer with strict JSON only.`,
		User: `For each interaction below, give the most specific plausible pathway name and a confidence between 0 and 1.

Interactions:
{{range .Interactions}}[{{.Index}}] {{.ProteinA}} - {{.ProteinB}}
  A: {{.AnnotationA}}
  B: {{.AnnotationB}}
{{end}}
Return JSON: {"assignments": [{"index": <int>, "pathway": "<name>", "confidence": <0..1>}, ...]} with one entry per interaction, using the indices shown.`,
		Validators: []Validator{requireInteractions, requireRootCategories},
	})

	RegisterSpec(Spec{
		Name:       PromptSynonymConfirm,
		Version:    1,
		SchemaName: "synonym_groups",
		Schema:     synonymGroupsSchema,
		System: `You are an expert in biological pathway nomenclature.
Decide whether candidate pathway names refer to the same pathway, and pick one canonical display name per true synonym group.
Answer with strict JSON only.`,
		User: `These names were flagged as possible synonyms of each other:
{{range .ClusterMembers}}- {{.}}
{{end}}
Split them into groups of true synonyms. Every input name must appear in exactly one group's members. For each group choose the clearest canonical name (it may be one of the members).

Return JSON: {"groups": [{"canonical": "<name>", "members": ["<name>", ...]}, ...]}`,
		Validators: []Validator{requireClusterMembers},
	})

	RegisterSpec(Spec{
		Name:       PromptRefineAssign,
		Version:    1,
		SchemaName: "refined_assignments",
		Schema:     assignmentListSchema,
		System: `You are an expert in molecular and cellular biology.
Assign each protein-protein interaction to exactly one pathway chosen from a fixed vocabulary.
You must answer with a name copied verbatim from the vocabulary. Never invent a new name.
Answer with strict JSON only.`,
		User: `Vocabulary of allowed pathway names:
{{range .CandidateNames}}- {{.}}
{{end}}
Interactions:
{{range .Interactions}}[{{.Index}}] {{.ProteinA}} - {{.ProteinB}}
  A: {{.AnnotationA}}
  B: {{.AnnotationB}}
{{end}}
For each interaction pick the single most specific name from the vocabulary and a confidence between 0 and 1.

Return JSON: {"assignments": [{"index": <int>, "pathway": "<vocabulary name>", "confidence": <0..1>}, ...]}`,
		Validators: []Validator{requireInteractions, requireCandidateNames},
	})

	RegisterSpec(Spec{
		Name:       PromptChainBuild,
		Version:    1,
		SchemaName: "pathway_chain",
		Schema:     chainSchema,
		System: `You are an expert in biological pathway classification.
Build an is-a-type-of chain from a top-level category down to a specific pathway.
The first element MUST be one of the allowed top-level categories, the last element MUST be the target pathway, and each element must be a strictly more specific pathway than the one before it.
Answer with strict JSON only.`,
		User: `Target pathway: {{.PathwayName}}

Allowed top-level categories:
{{range .RootCategories}}- {{.}}
{{end}}
{{if .Interactions}}Representative interactions assigned to this pathway:
{{range .Interactions}}- {{.ProteinA}} / {{.ProteinB}}: {{.AnnotationA}}
{{end}}{{end}}
Produce the chain from category to "{{.PathwayName}}", at most {{.MaxDepth}} elements, plus an overall confidence between 0 and 1.

Return JSON: {"chain": ["<category>", "...", "{{.PathwayName}}"], "confidence": <0..1>}`,
		Validators: []Validator{requirePathwayName, requireRootCategories},
	})

	RegisterSpec(Spec{
		Name:       PromptSiblingExpand,
		Version:    1,
		SchemaName: "pathway_siblings",
		Schema:     siblingsSchema,
		System: `You are an expert in biological pathway classification.
List additional well-established pathways that are direct children of a given parent pathway.
Answer with strict JSON only.`,
		User: `Parent pathway: {{.ParentName}}
Known child: {{.MainChildName}}
{{if .ExistingChildren}}Other children already known (do not repeat):
{{range .ExistingChildren}}- {{.}}
{{end}}{{end}}
Name up to {{.MaxSiblings}} additional direct children of "{{.ParentName}}" that are peers of "{{.MainChildName}}". Only include real, commonly recognized pathways. Return an empty list if none exist.

Return JSON: {"siblings": ["<name>", ...], "confidence": <0..1>}`,
		Validators: []Validator{requireSiblingPair},
	})

	RegisterSpec(Spec{
		Name:       PromptEvidenceEnrich,
		Version:    1,
		SchemaName: "evidence_results",
		Schema:     evidenceSchema,
		System: `You are a rigorous fact-checker for protein interaction claims.
Verify each claimed interaction against primary literature using search, from scratch; do not trust the input.
Watch for mechanistic opposites: transcriptional repression conflated with protein destabilization, activators conflated with repressors.
If no specific publication supports an interaction, mark it invalid rather than inventing support.
Answer with strict JSON only.`,
		User: `Interactions to verify:
{{range .Interactions}}[{{.Index}}] {{.ProteinA}} - {{.ProteinB}}
  A: {{.AnnotationA}}
  B: {{.AnnotationB}}
{{end}}
For each interaction report whether it is supported by the literature, correct the mechanism where the claim is wrong, and cite the supporting publications with exact title, journal, year, and a short verbatim quote.

Return JSON: {"results": [{"index": <int>, "valid": <bool>, "mechanism": "<corrected mechanism>", "citations": [{"title": "<exact paper title>", "journal": "<journal>", "year": <int>, "quote": "<verbatim quote>"}, ...]}, ...]} with one entry per interaction, using the indices shown.`,
		Validators: []Validator{requireInteractions},
	})
}
