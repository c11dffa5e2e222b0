package textutil

import (
	"strings"
	"testing"
)

func TestHTMLToText_Empty(t *testing.T) {
	if got := HTMLToText(""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestHTMLToText_StripsTags(t *testing.T) {
	got := HTMLToText("<p>Hello <b>World</b></p>")
	if !strings.Contains(got, "Hello World") {
		t.Errorf("expected 'Hello World' in %q", got)
	}
}

func TestHTMLToText_BrToNewline(t *testing.T) {
	got := HTMLToText("Line 1<br/>Line 2<br>Line 3")
	if got != "Line 1\nLine 2\nLine 3" {
		t.Errorf("expected newline-separated lines, got %q", got)
	}
}

func TestHTMLToText_ParagraphBoundaries(t *testing.T) {
	got := HTMLToText("<p>Para 1</p><p>Para 2</p>")
	if !strings.Contains(got, "Para 1") || !strings.Contains(got, "Para 2") {
		t.Errorf("expected both paragraphs in %q", got)
	}
	if !strings.Contains(got, "\n") {
		t.Errorf("expected paragraph boundary to become a newline in %q", got)
	}
}

func TestHTMLToText_DecodesEntities(t *testing.T) {
	if got := HTMLToText("Tom &amp; Jerry"); !strings.Contains(got, "&") {
		t.Errorf("expected decoded ampersand in %q", got)
	}
	if got := HTMLToText("a &lt; b"); !strings.Contains(got, "<") {
		t.Errorf("expected decoded angle bracket in %q", got)
	}
}

func TestHTMLToText_DoubleEncoded(t *testing.T) {
	// Some boards serve HTML-encoded HTML.
	got := HTMLToText("&lt;p&gt;We are hiring&lt;/p&gt;")
	if got != "We are hiring" {
		t.Errorf("expected double-encoded markup stripped, got %q", got)
	}
}

func TestHTMLToText_CollapsesWhitespace(t *testing.T) {
	got := HTMLToText("<p>   lots   of   spaces   </p>")
	if strings.Contains(got, "  ") {
		t.Errorf("expected collapsed whitespace, got %q", got)
	}
}

func TestHTMLToText_Totality(t *testing.T) {
	// Malformed inputs must not panic and must return something.
	inputs := []string{
		"<",
		">",
		"<div",
		"<p>unclosed",
		"</span> stray close",
		"<<<<>>>>",
		"plain text, no markup",
	}
	for _, in := range inputs {
		_ = HTMLToText(in) // must not panic
	}
}

func TestNormalizeForFingerprint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Senior Software Engineer", "senior software engineer"},
		{"Sr. Developer (Remote)", "sr developer remote"},
		{"ACME Corporation, Inc.", "acme corporation inc"},
		{"  San Francisco,   CA ", "san francisco ca"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeForFingerprint(c.in); got != c.want {
			t.Errorf("NormalizeForFingerprint(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
