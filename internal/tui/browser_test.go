package tui

import (
	"strings"
	"testing"

	"github.com/postly/scout/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func TestFormatSalary(t *testing.T) {
	cases := []struct {
		min, max *float64
		want     string
	}{
		{floatPtr(90000), floatPtr(120000), "$90k - $120k"},
		{floatPtr(90000), nil, "from $90k"},
		{nil, floatPtr(120000), "up to $120k"},
		{nil, nil, ""},
	}
	for _, tc := range cases {
		if got := formatSalary(tc.min, tc.max); got != tc.want {
			t.Errorf("formatSalary(%v, %v) = %q, want %q", tc.min, tc.max, got, tc.want)
		}
	}
}

func TestWordWrap(t *testing.T) {
	wrapped := wordWrap("one two three four five", 9)
	for i, line := range strings.Split(wrapped, "\n") {
		if len(line) > 9 {
			t.Errorf("line %d exceeds width: %q", i, line)
		}
	}
	if wordWrap("", 10) != "" {
		t.Error("expected empty output for empty input")
	}
}

func TestRenderResultsEmpty(t *testing.T) {
	if got := renderResults(nil, 0); got != "  (no results)" {
		t.Errorf("unexpected placeholder: %q", got)
	}
}

func TestRenderResultsMarksCursor(t *testing.T) {
	results := []model.SearchResult{
		{Job: model.Job{Title: "First", Company: "A"}, Combined: 0.9},
		{Job: model.Job{Title: "Second", Company: "B"}, Combined: 0.5},
	}
	out := renderResults(results, 1)
	if !strings.Contains(out, "> ") {
		t.Error("expected cursor marker in output")
	}
	if !strings.Contains(out, "0.500") {
		t.Error("expected combined score rendered")
	}
}
