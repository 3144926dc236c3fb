package commands

import (
	"sort"
	"strings"
)

// tokenSetRatio scores how well query matches candidate using the
// token-set-ratio technique: tokenize both, partition into the shared
// intersection and each side's unique remainder, and score the best of the
// three string-similarity comparisons over those reassembled strings
// (spec.md §4.5: "fuzzy match (token_set_ratio >= 90)"). Returns an int in
// [0, 100].
func tokenSetRatio(query, candidate string) int {
	// A query that is an abbreviation prefix of the candidate (or vice
	// versa) is the common case for dotted command shorthand (`c` for
	// `core`, `prox` for `proxy`) and should win outright rather than being
	// scored down by whole-string edit distance.
	ql, cl := strings.ToLower(query), strings.ToLower(candidate)
	if ql != "" && (strings.HasPrefix(cl, ql) || strings.HasPrefix(ql, cl)) {
		return 100
	}

	qTokens := tokenize(query)
	cTokens := tokenize(candidate)

	qSet := toSet(qTokens)
	cSet := toSet(cTokens)

	var intersection, qOnly, cOnly []string
	for t := range qSet {
		if cSet[t] {
			intersection = append(intersection, t)
		} else {
			qOnly = append(qOnly, t)
		}
	}
	for t := range cSet {
		if !qSet[t] {
			cOnly = append(cOnly, t)
		}
	}
	sort.Strings(intersection)
	sort.Strings(qOnly)
	sort.Strings(cOnly)

	sorted := strings.Join(intersection, " ")
	combinedQ := strings.TrimSpace(sorted + " " + strings.Join(qOnly, " "))
	combinedC := strings.TrimSpace(sorted + " " + strings.Join(cOnly, " "))

	best := ratio(sorted, combinedQ)
	if r := ratio(sorted, combinedC); r > best {
		best = r
	}
	if r := ratio(combinedQ, combinedC); r > best {
		best = r
	}
	return best
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == ' '
	})
	return fields
}

func toSet(tokens []string) map[string]bool {
	out := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		out[t] = true
	}
	return out
}

// ratio scores string similarity in [0, 100] as
// 100 * (1 - levenshtein(a,b) / max(len(a), len(b))), matching the
// normalized-distance definition token_set_ratio is built on.
func ratio(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	dist := levenshtein(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}
	return int(100 * (1 - float64(dist)/float64(maxLen)))
}

func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	m, n := len(ar), len(br)
	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	prev := make([]int, n+1)
	curr := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[n]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// bestMatch returns the candidate with the highest tokenSetRatio against
// query, provided it meets minScore, and whether a qualifying match was
// found. Ties on score are broken by which candidate's length is closest to
// the query's (the more specific, less-padded match), then alphabetically,
// so the result is reproducible (spec.md §8 property 10: fuzzy-match
// determinism).
func bestMatch(query string, candidates []string, minScore int) (string, bool) {
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	bestCandidate := ""
	bestScore := -1
	bestLenDiff := 1 << 30
	for _, c := range sorted {
		score := tokenSetRatio(query, c)
		lenDiff := len(c) - len(query)
		if lenDiff < 0 {
			lenDiff = -lenDiff
		}
		if score > bestScore || (score == bestScore && lenDiff < bestLenDiff) {
			bestScore = score
			bestCandidate = c
			bestLenDiff = lenDiff
		}
	}
	if bestScore < minScore {
		return "", false
	}
	return bestCandidate, true
}
