package render

import (
	"strings"
	"testing"
	"time"
)

func TestFormatRemaining(t *testing.T) {
	cases := []struct {
		remaining time.Duration
		want      string
	}{
		{5 * time.Minute, "5:00"},
		{272 * time.Second, "4:32"},
		{61 * time.Second, "1:01"},
		{9 * time.Second, "0:09"},
		{0, "0:00"},
		{-3 * time.Second, "0:00"},
	}
	for _, tc := range cases {
		if got := FormatRemaining(tc.remaining); got != tc.want {
			t.Errorf("FormatRemaining(%s) = %s, want %s", tc.remaining, got, tc.want)
		}
	}
}

func TestBannerShowsCountdownAndKeys(t *testing.T) {
	out := Banner(BannerData{
		Title:       "Run command",
		Description: "ls -la",
		Phase:       "normal",
		Remaining:   272 * time.Second,
	})
	if !strings.Contains(out, "4:32") {
		t.Fatalf("expected countdown in banner, got:\n%s", out)
	}
	if !strings.Contains(out, "a: approve") {
		t.Fatalf("expected decision keys in banner, got:\n%s", out)
	}
}

func TestBannerConfirmationStep(t *testing.T) {
	out := Banner(BannerData{
		Title:      "Run command",
		Phase:      "normal",
		Remaining:  time.Minute,
		Confirming: true,
	})
	if !strings.Contains(out, "Always allow") {
		t.Fatalf("expected confirmation text, got:\n%s", out)
	}
	if !strings.Contains(out, "esc: back") {
		t.Fatalf("expected cancel key hint, got:\n%s", out)
	}
}

func TestBannerShowsQueueLength(t *testing.T) {
	out := Banner(BannerData{
		Title:       "Run command",
		Phase:       "warning",
		Remaining:   30 * time.Second,
		QueueLength: 2,
	})
	if !strings.Contains(out, "+2 queued") {
		t.Fatalf("expected queue hint, got:\n%s", out)
	}
}

func TestMarkdownFallsBackToRaw(t *testing.T) {
	out := Markdown("plain text")
	if out == "" {
		t.Fatal("expected non-empty output")
	}
}
