package steps

import (
	"sort"
	"strings"
	"unicode"
)

// Deterministic pre-normalization used to cluster candidate synonyms before
// the oracle confirms them.

var greekLetters = map[rune]string{
	'α': "alpha",
	'β': "beta",
	'γ': "gamma",
	'δ': "delta",
	'ε': "epsilon",
	'ζ': "zeta",
	'η': "eta",
	'θ': "theta",
	'ι': "iota",
	'κ': "kappa",
	'λ': "lambda",
	'μ': "mu",
	'ν': "nu",
	'ξ': "xi",
	'π': "pi",
	'ρ': "rho",
	'σ': "sigma",
	'τ': "tau",
	'υ': "upsilon",
	'φ': "phi",
	'χ': "chi",
	'ψ': "psi",
	'ω': "omega",
}

var genericSuffixes = []string{
	" pathway",
	" signaling",
	" regulation",
	" process",
	" system",
	" cascade",
	" network",
	" response",
}

// normalizeForComparison reduces a pathway name to a comparable form:
// lowercase, Greek letters spelled out, punctuation collapsed to spaces,
// generic suffixes stripped repeatedly.
func normalizeForComparison(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "signalling", "signaling")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if g, ok := greekLetters[r]; ok {
			b.WriteString(g)
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	s = strings.Join(strings.Fields(b.String()), " ")

	for {
		trimmed := s
		for _, suf := range genericSuffixes {
			trimmed = strings.TrimSuffix(trimmed, suf)
		}
		if trimmed == s {
			break
		}
		s = strings.TrimSpace(trimmed)
	}
	return s
}

// similarityRatio is the classic sequence-matcher ratio: 2*M/T where M is
// the total length of matched blocks and T the combined length.
func similarityRatio(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 1
	}
	m := matchedLength(a, b)
	return 2 * float64(m) / float64(len(a)+len(b))
}

type matchSegment struct {
	alo, ahi, blo, bhi int
}

func matchedLength(a, b string) int {
	total := 0
	stack := []matchSegment{{0, len(a), 0, len(b)}}
	for len(stack) > 0 {
		seg := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ai, bi, size := longestCommonBlock(a, b, seg)
		if size == 0 {
			continue
		}
		total += size
		stack = append(stack,
			matchSegment{seg.alo, ai, seg.blo, bi},
			matchSegment{ai + size, seg.ahi, bi + size, seg.bhi},
		)
	}
	return total
}

func longestCommonBlock(a, b string, seg matchSegment) (ai, bi, size int) {
	prev := make([]int, seg.bhi-seg.blo+1)
	cur := make([]int, seg.bhi-seg.blo+1)
	for i := seg.alo; i < seg.ahi; i++ {
		for j := seg.blo; j < seg.bhi; j++ {
			if a[i] == b[j] {
				cur[j-seg.blo+1] = prev[j-seg.blo] + 1
				if cur[j-seg.blo+1] > size {
					size = cur[j-seg.blo+1]
					ai = i - size + 1
					bi = j - size + 1
				}
			} else {
				cur[j-seg.blo+1] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}

// groupSimilarNames clusters names whose normalized forms compare at or
// above threshold. Single-link: a name joins the first cluster any member
// of which is close enough. Output order is deterministic.
func groupSimilarNames(names []string, threshold float64) [][]string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	normalized := make(map[string]string, len(sorted))
	for _, n := range sorted {
		normalized[n] = normalizeForComparison(n)
	}

	var clusters [][]string
	for _, name := range sorted {
		placed := false
		for ci, cluster := range clusters {
			for _, member := range cluster {
				if normalized[name] == normalized[member] ||
					similarityRatio(normalized[name], normalized[member]) >= threshold {
					clusters[ci] = append(clusters[ci], name)
					placed = true
					break
				}
			}
			if placed {
				break
			}
		}
		if !placed {
			clusters = append(clusters, []string{name})
		}
	}
	return clusters
}
