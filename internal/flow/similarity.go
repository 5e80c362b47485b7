package flow

// Ratio is a local string-similarity measure in [0, 1]: twice the length of
// the longest common subsequence over the combined length, computed over
// runes. 1 means identical, 0 means nothing in common.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		if len(ra) == len(rb) {
			return 1
		}
		return 0
	}
	// Single-row LCS table.
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

// sharedTokens counts distinct tokens of at least minLen runes that appear in
// both token slices.
func sharedTokens(a, b []string, minLen int) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		if len([]rune(t)) >= minLen {
			set[t] = true
		}
	}
	n := 0
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if set[t] && !seen[t] {
			seen[t] = true
			n++
		}
	}
	return n
}
