package main

import (
	"strings"
	"testing"
	"time"

	"github.com/olivier-w/zinc/internal/ipc"
)

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Fatalf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("shortID short input = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 40); got != "hello" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := truncate("a very long title that keeps going", 10); got != "a very ..." {
		t.Fatalf("truncate long = %q", got)
	}
}

func TestFormatPercent(t *testing.T) {
	if got := formatPercent(0); got != "-" {
		t.Fatalf("formatPercent zero = %q", got)
	}
	if got := formatPercent(42.25); got != "42.2%" {
		t.Fatalf("formatPercent = %q", got)
	}
}

func TestFormatRelativeTime(t *testing.T) {
	if got := formatRelativeTime(time.Time{}); got != "-" {
		t.Fatalf("zero time = %q", got)
	}
	if got := formatRelativeTime(time.Now().Add(-10 * time.Second)); got != "just now" {
		t.Fatalf("recent = %q", got)
	}
	if got := formatRelativeTime(time.Now().Add(-5 * time.Minute)); got != "5m ago" {
		t.Fatalf("minutes = %q", got)
	}
}

func TestDisplayTitle(t *testing.T) {
	info := ipc.TaskInfo{Source: "https://example.com/v"}
	if got := displayTitle(info); got != "https://example.com/v" {
		t.Fatalf("fallback = %q", got)
	}
	info.Title = "Talk"
	if got := displayTitle(info); got != "Talk" {
		t.Fatalf("title = %q", got)
	}
}

func TestRenderTableAlignment(t *testing.T) {
	out := renderTable(
		[]string{"ID", "Count"},
		[][]string{{"a", "1"}, {"b", "22"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	if out == "" {
		t.Fatal("empty table output")
	}
	for _, want := range []string{"ID", "Count", "a", "22"} {
		requireContains(t, out, want)
	}
	if strings.Contains(out, "COUNT") {
		t.Fatal("header case not preserved")
	}
}
