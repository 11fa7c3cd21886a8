package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRecalculate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		ind   Staleness
		force bool
		want  bool
	}{
		{name: "fresh order", ind: Staleness{Editable: true}, want: false},
		{name: "forced", ind: Staleness{Editable: true}, force: true, want: true},
		{name: "dirty flag", ind: Staleness{Editable: true, Refresh: true}, want: true},
		{name: "checkout not expired", ind: Staleness{Editable: true, Expiration: now.Add(time.Minute)}, want: false},
		{name: "checkout expired", ind: Staleness{Editable: true, Expiration: now.Add(-time.Second)}, want: true},
		{name: "checkout expires now", ind: Staleness{Editable: true, Expiration: now}, want: true},
		{name: "finalized and forced", ind: Staleness{Editable: false, Refresh: true}, force: true, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldRecalculate(tc.ind, now, tc.force))
		})
	}
}
