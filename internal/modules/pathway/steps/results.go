package steps

import (
	"fmt"
	"strings"

	"github.com/yungbote/biopath-backend/internal/platform/gemini"
)

// Typed oracle results. Raw JSON is converted and validated here, at the
// boundary; anything off-shape becomes a ProtocolError and never travels
// deeper as untyped data.

type AssignmentResult struct {
	Index      int
	Pathway    string
	Confidence float64
}

type ChainResult struct {
	Chain      []string
	Confidence float64
}

type SiblingResult struct {
	Siblings   []string
	Confidence float64
}

type SynonymGroup struct {
	Canonical string
	Members   []string
}

type Citation struct {
	Title   string
	Journal string
	Year    int
	Quote   string
}

type EvidenceResult struct {
	Index     int
	Valid     bool
	Mechanism string
	Citations []Citation
}

func parseAssignmentResults(data map[string]any, batchSize int) ([]AssignmentResult, error) {
	rawList, ok := data["assignments"].([]any)
	if !ok {
		return nil, &gemini.ProtocolError{Reason: "missing assignments array"}
	}
	out := make([]AssignmentResult, 0, len(rawList))
	for _, item := range rawList {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &gemini.ProtocolError{Reason: "assignment entry is not an object"}
		}
		idx, ok := intFromAny(obj["index"])
		if !ok || idx < 0 || idx >= batchSize {
			return nil, &gemini.ProtocolError{Reason: fmt.Sprintf("assignment index %v out of range [0,%d)", obj["index"], batchSize)}
		}
		name := strings.TrimSpace(stringFromAny(obj["pathway"]))
		if name == "" {
			return nil, &gemini.ProtocolError{Reason: "assignment with empty pathway name"}
		}
		conf, _ := floatFromAny(obj["confidence"])
		out = append(out, AssignmentResult{Index: idx, Pathway: name, Confidence: clamp01(conf)})
	}
	return out, nil
}

func parseChainResult(data map[string]any) (ChainResult, error) {
	rawChain, ok := data["chain"].([]any)
	if !ok || len(rawChain) == 0 {
		return ChainResult{}, &gemini.ProtocolError{Reason: "missing or empty chain array"}
	}
	chain := make([]string, 0, len(rawChain))
	for _, el := range rawChain {
		s := strings.TrimSpace(stringFromAny(el))
		if s == "" {
			return ChainResult{}, &gemini.ProtocolError{Reason: "chain contains an empty element"}
		}
		chain = append(chain, s)
	}
	conf, _ := floatFromAny(data["confidence"])
	return ChainResult{Chain: chain, Confidence: clamp01(conf)}, nil
}

func parseSiblingResult(data map[string]any) (SiblingResult, error) {
	rawSiblings, ok := data["siblings"].([]any)
	if !ok {
		return SiblingResult{}, &gemini.ProtocolError{Reason: "missing siblings array"}
	}
	siblings := make([]string, 0, len(rawSiblings))
	for _, el := range rawSiblings {
		s := strings.TrimSpace(stringFromAny(el))
		if s != "" {
			siblings = append(siblings, s)
		}
	}
	conf, _ := floatFromAny(data["confidence"])
	return SiblingResult{Siblings: dedupeStrings(siblings), Confidence: clamp01(conf)}, nil
}

func parseEvidenceResults(data map[string]any, batchSize int) ([]EvidenceResult, error) {
	rawList, ok := data["results"].([]any)
	if !ok {
		return nil, &gemini.ProtocolError{Reason: "missing results array"}
	}
	out := make([]EvidenceResult, 0, len(rawList))
	for _, item := range rawList {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &gemini.ProtocolError{Reason: "evidence entry is not an object"}
		}
		idx, ok := intFromAny(obj["index"])
		if !ok || idx < 0 || idx >= batchSize {
			return nil, &gemini.ProtocolError{Reason: fmt.Sprintf("evidence index %v out of range [0,%d)", obj["index"], batchSize)}
		}
		valid, ok := obj["valid"].(bool)
		if !ok {
			return nil, &gemini.ProtocolError{Reason: "evidence entry without a valid flag"}
		}
		res := EvidenceResult{
			Index:     idx,
			Valid:     valid,
			Mechanism: strings.TrimSpace(stringFromAny(obj["mechanism"])),
		}
		if rawCitations, ok := obj["citations"].([]any); ok {
			for _, rc := range rawCitations {
				co, ok := rc.(map[string]any)
				if !ok {
					continue
				}
				title := strings.TrimSpace(stringFromAny(co["title"]))
				if title == "" {
					continue
				}
				year, _ := intFromAny(co["year"])
				res.Citations = append(res.Citations, Citation{
					Title:   title,
					Journal: strings.TrimSpace(stringFromAny(co["journal"])),
					Year:    year,
					Quote:   strings.TrimSpace(stringFromAny(co["quote"])),
				})
			}
		}
		// A validated claim without a single citation is exactly the invented
		// support the pass exists to catch.
		if res.Valid && len(res.Citations) == 0 {
			return nil, &gemini.ProtocolError{Reason: fmt.Sprintf("evidence entry %d validated without citations", idx)}
		}
		out = append(out, res)
	}
	return out, nil
}

func parseSynonymGroups(data map[string]any, members []string) ([]SynonymGroup, error) {
	rawGroups, ok := data["groups"].([]any)
	if !ok || len(rawGroups) == 0 {
		return nil, &gemini.ProtocolError{Reason: "missing groups array"}
	}
	allowed := map[string]bool{}
	for _, m := range members {
		allowed[m] = true
	}
	covered := map[string]bool{}
	out := make([]SynonymGroup, 0, len(rawGroups))
	for _, item := range rawGroups {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &gemini.ProtocolError{Reason: "group entry is not an object"}
		}
		canonical := strings.TrimSpace(stringFromAny(obj["canonical"]))
		if canonical == "" {
			return nil, &gemini.ProtocolError{Reason: "group with empty canonical name"}
		}
		rawMembers, ok := obj["members"].([]any)
		if !ok || len(rawMembers) == 0 {
			return nil, &gemini.ProtocolError{Reason: "group with no members"}
		}
		g := SynonymGroup{Canonical: canonical}
		for _, el := range rawMembers {
			m := strings.TrimSpace(stringFromAny(el))
			if !allowed[m] {
				return nil, &gemini.ProtocolError{Reason: fmt.Sprintf("group member %q not in the submitted cluster", m)}
			}
			if covered[m] {
				return nil, &gemini.ProtocolError{Reason: fmt.Sprintf("name %q appears in more than one group", m)}
			}
			covered[m] = true
			g.Members = append(g.Members, m)
		}
		out = append(out, g)
	}
	for _, m := range members {
		if !covered[m] {
			return nil, &gemini.ProtocolError{Reason: fmt.Sprintf("name %q missing from every group", m)}
		}
	}
	return out, nil
}

func stringFromAny(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func intFromAny(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	default:
		return 0, false
	}
}

func floatFromAny(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
