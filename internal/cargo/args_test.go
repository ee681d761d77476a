package cargo

import (
	"reflect"
	"testing"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantArgs   []string
		wantTarget bool
	}{
		{
			name:     "filter release",
			args:     []string{"foo", "--release", "--bar"},
			wantArgs: []string{"foo", "--bar"},
		},
		{
			name:     "filter message format",
			args:     []string{"foo", "--message-format", "json", "bar"},
			wantArgs: []string{"foo", "bar"},
		},
		{
			name:     "filter message format with equals",
			args:     []string{"--message-format=short", "bar"},
			wantArgs: []string{"bar"},
		},
		{
			name:       "find target",
			args:       []string{"--target", "x64", "bar"},
			wantArgs:   []string{"--target", "x64", "bar"},
			wantTarget: true,
		},
		{
			name:       "find target with equals",
			args:       []string{"--target=x64", "bar"},
			wantArgs:   []string{"--target=x64", "bar"},
			wantTarget: true,
		},
		{
			name:     "dangling message format",
			args:     []string{"foo", "--message-format"},
			wantArgs: []string{"foo"},
		},
		{
			name:     "empty",
			args:     nil,
			wantArgs: nil,
		},
		{
			name:     "passthrough",
			args:     []string{"--bin", "foo", "--", "-v"},
			wantArgs: []string{"--bin", "foo", "--", "-v"},
		},
		{
			name:       "everything",
			args:       []string{"-p", "a", "--release", "--target", "x64", "--message-format", "json", "--features", "b"},
			wantArgs:   []string{"-p", "a", "--target", "x64", "--features", "b"},
			wantTarget: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseArgs(tt.args)
			if !reflect.DeepEqual(got.Filtered, tt.wantArgs) {
				t.Errorf("ParseArgs(%q).Filtered = %q, want %q", tt.args, got.Filtered, tt.wantArgs)
			}
			if got.HasTarget != tt.wantTarget {
				t.Errorf("ParseArgs(%q).HasTarget = %v, want %v", tt.args, got.HasTarget, tt.wantTarget)
			}
		})
	}
}

func TestParseArgsDoesNotMutateInput(t *testing.T) {
	args := []string{"foo", "--release", "--message-format", "json", "bar"}
	saved := append([]string(nil), args...)
	ParseArgs(args)
	if !reflect.DeepEqual(args, saved) {
		t.Errorf("input modified: %q, want %q", args, saved)
	}
}
