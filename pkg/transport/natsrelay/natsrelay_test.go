package natsrelay

import (
	"context"
	"testing"
)

func TestNew_RejectsInvalidTopology(t *testing.T) {
	tests := []struct {
		name string
		rank int
		size int
	}{
		{name: "single worker", rank: 0, size: 1},
		{name: "negative rank", rank: -1, size: 3},
		{name: "rank beyond size", rank: 3, size: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(context.Background(), nil, tt.rank, tt.size, "test"); err == nil {
				t.Errorf("New(rank=%d,size=%d) expected error", tt.rank, tt.size)
			}
		})
	}
}

func TestRelay_Subjects(t *testing.T) {
	r := &Relay{prefix: "roadsim"}
	tests := []struct {
		parts []string
		want  string
	}{
		{parts: []string{"handoff", "1"}, want: "roadsim.handoff.1"},
		{parts: []string{"barrier", "arrive"}, want: "roadsim.barrier.arrive"},
		{parts: []string{"stats"}, want: "roadsim.stats"},
	}
	for _, tt := range tests {
		if got := r.subject(tt.parts...); got != tt.want {
			t.Errorf("subject(%v) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}
