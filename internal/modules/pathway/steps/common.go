package steps

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/biopath-backend/internal/modules/pathway/prompts"
	types "github.com/yungbote/biopath-backend/internal/domain"
)

// RunContext is the explicit per-run memory threaded through every stage:
// what each interaction is currently assigned, the canonical-name mapping,
// and every chain built so far (the attach-to-existing source).
type RunContext struct {
	// Assignments is keyed by interaction id; values are the current
	// canonical (or raw, pre-normalization) pathway name and confidence.
	Assignments map[uuid.UUID]*Assignment

	// CanonicalNames maps raw name -> canonical name. Total over every raw
	// name seen this run; canonical names map to themselves.
	CanonicalNames map[string]string

	// Chains maps canonical name -> root->name chain for chains built or
	// reused this run.
	Chains map[string][]string

	// FailedChains lists canonical names whose chain build failed this run;
	// they stay unplaced and are retried on the next invocation.
	FailedChains []string
}

func NewRunContext() *RunContext {
	return &RunContext{
		Assignments:    map[uuid.UUID]*Assignment{},
		CanonicalNames: map[string]string{},
		Chains:         map[string][]string{},
	}
}

type Assignment struct {
	InteractionID uuid.UUID
	PathwayName   string
	Confidence    float64
	Source        string
}

// Canonical resolves a raw name through the run's mapping, returning the
// input unchanged when no mapping exists yet.
func (rc *RunContext) Canonical(raw string) string {
	if c, ok := rc.CanonicalNames[raw]; ok && c != "" {
		return c
	}
	return raw
}

// AssignedNames returns the deduplicated, sorted set of pathway names
// currently assigned to at least one interaction.
func (rc *RunContext) AssignedNames() []string {
	seen := map[string]bool{}
	for _, a := range rc.Assignments {
		name := strings.TrimSpace(a.PathwayName)
		if name != "" && !seen[name] {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ChainContaining returns the prefix of a previously built chain ending at
// name, or nil. This is the attach-to-existing lookup over current-run
// chains.
func (rc *RunContext) ChainContaining(name string) []string {
	keys := make([]string, 0, len(rc.Chains))
	for k := range rc.Chains {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		chain := rc.Chains[k]
		for i, el := range chain {
			if el == name {
				return append([]string(nil), chain[:i+1]...)
			}
		}
	}
	return nil
}

func mustJSON(v any) datatypes.JSON {
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}

func decodeChain(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// interactionContexts renders interactions for a prompt, indexed from 0
// within the batch.
func interactionContexts(rows []*types.Interaction, maxAnnotationChars int) []prompts.InteractionContext {
	if maxAnnotationChars <= 0 {
		maxAnnotationChars = 300
	}
	out := make([]prompts.InteractionContext, 0, len(rows))
	for i, r := range rows {
		if r == nil {
			continue
		}
		out = append(out, prompts.InteractionContext{
			Index:       i,
			ProteinA:    r.ProteinA,
			ProteinB:    r.ProteinB,
			AnnotationA: shorten(r.AnnotationA, maxAnnotationChars),
			AnnotationB: shorten(r.AnnotationB, maxAnnotationChars),
		})
	}
	return out
}

func shorten(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	// Annotations quote Greek-lettered protein names; cut on a rune boundary.
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func batchSlices[T any](rows []T, size int) [][]T {
	if size <= 0 {
		size = len(rows)
	}
	var out [][]T
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
