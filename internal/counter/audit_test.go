package counter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tckz/go-visit-counter/internal/counter"
)

func TestAudit(t *testing.T) {
	tests := []struct {
		name   string
		counts []int64
		dups   []int64
		gaps   []int64
	}{
		{name: "empty"},
		{name: "contiguous", counts: []int64{44, 42, 43}},
		{name: "gap only", counts: []int64{42, 44}, gaps: []int64{43}},
		{name: "duplicate and gap", counts: []int64{42, 45, 42, 43}, dups: []int64{42}, gaps: []int64{44}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dups, gaps := counter.Audit(tt.counts)
			assert.ElementsMatch(t, tt.dups, dups)
			assert.ElementsMatch(t, tt.gaps, gaps)
		})
	}
}
