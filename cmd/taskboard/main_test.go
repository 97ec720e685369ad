package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRewriteDirectTaskLookupArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "no args",
			in:   []string{"taskboard"},
			want: []string{"taskboard"},
		},
		{
			name: "direct task id first token",
			in:   []string{"taskboard", "task-abc123"},
			want: []string{"taskboard", "show", "task-abc123"},
		},
		{
			name: "direct task id after value flag",
			in:   []string{"taskboard", "--base-url", "http://localhost:7420", "task-abc123"},
			want: []string{"taskboard", "--base-url", "http://localhost:7420", "show", "task-abc123"},
		},
		{
			name: "direct task id after equals flag",
			in:   []string{"taskboard", "--format=yaml", "task-abc123"},
			want: []string{"taskboard", "--format=yaml", "show", "task-abc123"},
		},
		{
			name: "direct task id after bool flag",
			in:   []string{"taskboard", "--pretty", "task-abc123"},
			want: []string{"taskboard", "--pretty", "show", "task-abc123"},
		},
		{
			name: "direct task id after double dash",
			in:   []string{"taskboard", "--", "task-abc123"},
			want: []string{"taskboard", "--", "show", "task-abc123"},
		},
		{
			name: "placeholder ids are not looked up",
			in:   []string{"taskboard", "tmp-abc123"},
			want: []string{"taskboard", "tmp-abc123"},
		},
		{
			name: "normal subcommand not rewritten",
			in:   []string{"taskboard", "show", "task-abc123"},
			want: []string{"taskboard", "show", "task-abc123"},
		},
		{
			name: "bare prefix not rewritten",
			in:   []string{"taskboard", "task-"},
			want: []string{"taskboard", "task-"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rewriteDirectTaskLookupArgs(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("rewriteDirectTaskLookupArgs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
