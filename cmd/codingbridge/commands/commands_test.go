package commands

import (
	"log/slog"
	"testing"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCmd()

	expected := []string{"init", "serve", "prompt", "approvals", "allowlist", "status", "version"}
	for _, name := range expected {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q", name)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		configLevel string
		override    string
		want        slog.Level
		wantErr     bool
	}{
		{"", "", slog.LevelInfo, false},
		{"info", "", slog.LevelInfo, false},
		{"debug", "", slog.LevelDebug, false},
		{"warn", "", slog.LevelWarn, false},
		{"warning", "", slog.LevelWarn, false},
		{"error", "", slog.LevelError, false},
		{"info", "debug", slog.LevelDebug, false},
		{"trace", "", 0, true},
	}
	for _, tc := range cases {
		got, err := parseLogLevel(tc.configLevel, tc.override)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseLogLevel(%q, %q): expected error", tc.configLevel, tc.override)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseLogLevel(%q, %q): %v", tc.configLevel, tc.override, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseLogLevel(%q, %q) = %v, want %v", tc.configLevel, tc.override, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 10); got != "abcdef" {
		t.Errorf("expected unchanged string, got %q", got)
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("expected abc..., got %q", got)
	}
}
