package schema

import (
	"fmt"
	"strings"
)

// distance is the rune-wise edit distance between a and b, folding case.
func distance(a, b string) int {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}
	for i, ca := range ra {
		diag := row[0]
		row[0] = i + 1
		for j, cb := range rb {
			sub := diag
			if ca != cb {
				sub++
			}
			diag = row[j+1]
			row[j+1] = min(row[j+1]+1, row[j]+1, sub)
		}
	}
	return row[len(rb)]
}

// Closest returns the candidate nearest to input when it is within maxDist
// edits. Ties go to the earlier candidate.
func Closest(input string, candidates []string, maxDist int) (string, bool) {
	best, bestDist := "", maxDist+1
	for _, c := range candidates {
		if d := distance(input, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist <= maxDist
}

// DidYouMean formats the closest candidate as a hint, or returns "".
func DidYouMean(input string, candidates []string, maxDist int) string {
	if c, ok := Closest(input, candidates, maxDist); ok {
		return fmt.Sprintf("did you mean '%s'?", c)
	}
	return ""
}
