package reply

import "strings"

// Ratio scores how alike two texts are: 2·LCS / (len(a)+len(b)) over
// normalized rune sequences, in [0, 1]. Identical texts score 1, texts
// with nothing in common score 0.
func Ratio(a, b string) float64 {
	ra := []rune(normalizeText(a))
	rb := []rune(normalizeText(b))
	if len(ra)+len(rb) == 0 {
		return 0
	}
	return 2 * float64(lcs(ra, rb)) / float64(len(ra)+len(rb))
}

// lcs computes the longest-common-subsequence length with two rolling
// rows.
func lcs(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// normalizeText lowercases and collapses whitespace so similarity is
// about words, not formatting.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
