package counter

import (
	"slices"

	"github.com/samber/lo"
)

// Audit checks the pre-increment values handed out to a set of visitors.
// Each value must be handed out once, so dups lists values seen more than
// once and gaps lists values between the smallest and largest seen that
// nobody got.
func Audit(counts []int64) (dups []int64, gaps []int64) {
	if len(counts) == 0 {
		return nil, nil
	}
	dups = lo.FindDuplicates(counts)

	sorted := lo.Uniq(counts)
	slices.Sort(sorted)
	for i := 1; i < len(sorted); i++ {
		for n := sorted[i-1] + 1; n < sorted[i]; n++ {
			gaps = append(gaps, n)
		}
	}
	return dups, gaps
}
