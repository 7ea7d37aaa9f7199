package match

// Similarity computes the normalized longest-common-subsequence ratio between
// two strings: LCS length divided by the longer length. Returns 0..1 and is
// symmetric in its arguments. Pure function, no normalization; callers are
// expected to normalize first.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}

	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	longer := len(ra)
	if len(rb) > longer {
		longer = len(rb)
	}
	return float64(lcsLength(ra, rb)) / float64(longer)
}

// lcsLength is the classic two-row dynamic program.
func lcsLength(a, b []rune) int {
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
