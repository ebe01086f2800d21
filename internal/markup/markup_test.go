package markup

import (
	"strings"
	"testing"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello there", "Hello there"},
		{"**Photosynthesis** turns light into *chemical* energy.", "Photosynthesis turns light into chemical energy."},
		{"Use `pH = -log[H+]` to find it.", "Use pH = -log[H+] to find it."},
		{"See [the lens formula](https://example.com) first.", "See the lens formula first."},
		{"# of atoms is Avogadro's number", "# of atoms is Avogadro's number"},
		{"- a list item", "- a list item"},
		{"Water <b>boils</b> at 100 degrees", "Water boils at 100 degrees"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := PlainText(tt.in); got != tt.want {
			t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToHTML(t *testing.T) {
	got, err := ToHTML("## Answer 1\n\nLight **bends** when it enters glass.\n\n| n | medium |\n|---|---|\n| 1.5 | glass |\n")
	if err != nil {
		t.Fatalf("ToHTML: %v", err)
	}
	s := string(got)
	for _, want := range []string{"<h2>Answer 1</h2>", "<strong>bends</strong>", "<table>", "<td>glass</td>"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestToHTMLEscapesRawHTML(t *testing.T) {
	got, err := ToHTML("Hi <script>alert(1)</script>\n\n<iframe src=x></iframe>")
	if err != nil {
		t.Fatalf("ToHTML: %v", err)
	}
	if s := string(got); strings.Contains(s, "<script>") || strings.Contains(s, "<iframe") {
		t.Errorf("raw HTML passed through: %s", s)
	}
}
