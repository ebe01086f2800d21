// Package script parses Host/Expert dialogue scripts.
package script

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Role identifies the speaker of a dialogue line.
type Role int

const (
	Unrecognized Role = iota
	Host
	Expert
)

const (
	HostPrefix   = "Host:"
	ExpertPrefix = "Expert:"
)

func (r Role) String() string {
	switch r {
	case Host:
		return "host"
	case Expert:
		return "expert"
	default:
		return "unrecognized"
	}
}

// Prefix returns the label that introduces the role's lines.
func (r Role) Prefix() string {
	switch r {
	case Host:
		return HostPrefix
	case Expert:
		return ExpertPrefix
	default:
		return ""
	}
}

// Line is one line of a script. Number is 1-based within the source text.
type Line struct {
	Number int
	Role   Role
	Text   string
}

// Spoken reports whether the line is recognized and has something to say.
func (l Line) Spoken() bool {
	return l.Role != Unrecognized && l.Text != ""
}

// ParseLine classifies a single line by its literal, case-sensitive prefix.
func ParseLine(s string) Line {
	switch {
	case strings.HasPrefix(s, HostPrefix):
		return Line{Role: Host, Text: strings.TrimSpace(s[len(HostPrefix):])}
	case strings.HasPrefix(s, ExpertPrefix):
		return Line{Role: Expert, Text: strings.TrimSpace(s[len(ExpertPrefix):])}
	default:
		return Line{Role: Unrecognized, Text: strings.TrimSpace(s)}
	}
}

// Parse splits text on "\n" and classifies every line.
func Parse(text string) []Line {
	raw := strings.Split(text, "\n")
	lines := make([]Line, 0, len(raw))
	for i, s := range raw {
		l := ParseLine(s)
		l.Number = i + 1
		lines = append(lines, l)
	}
	return lines
}

// Dialogue returns the spoken lines of text in order.
func Dialogue(text string) []Line {
	var out []Line
	for _, l := range Parse(text) {
		if l.Spoken() {
			out = append(out, l)
		}
	}
	return out
}

// labelPattern matches role labels decorated by markdown or odd casing, e.g. "**HOST:** hi".
var labelPattern = regexp.MustCompile(`(?i)^\s*([*_#>\-\s]*)\b(host|expert)\b\s*([*_]*)\s*:\s*([*_]*)\s*(.*)$`)

// labelText returns the spoken text of a labelPattern match. Emphasis opened before the label
// and not closed around the colon wraps the whole line, so only its closing run is removed.
func labelText(m []string) string {
	text := strings.TrimSpace(m[5])
	opening := strings.TrimRight(m[1], " \t")
	opening = opening[len(strings.TrimRight(opening, "*_")):]
	if opening == "" || m[3]+m[4] != "" {
		return text
	}
	closing := []byte(opening)
	slices.Reverse(closing)
	return strings.TrimSpace(strings.TrimSuffix(text, string(closing)))
}

// Normalize rewrites text so every non-blank line is a canonical "Host:" or "Expert:" line.
// Decorated labels are repaired; other lines are dropped. It returns the rewritten text and
// the number of dropped lines.
func Normalize(text string) (string, int) {
	var (
		out     []string
		dropped int
	)
	for _, s := range strings.Split(text, "\n") {
		s = strings.TrimRight(s, " \t\r")
		if strings.TrimSpace(s) == "" {
			continue
		}
		l := ParseLine(s)
		if l.Role == Unrecognized {
			m := labelPattern.FindStringSubmatch(s)
			if m == nil {
				dropped++
				continue
			}
			l.Role = Host
			if strings.EqualFold(m[2], "expert") {
				l.Role = Expert
			}
			l.Text = labelText(m)
		}
		if l.Text == "" {
			dropped++
			continue
		}
		out = append(out, l.Role.Prefix()+l.Text)
	}
	return strings.Join(out, "\n"), dropped
}

// Validate checks that every non-blank line carries a role prefix and that at least one
// line is spoken.
func Validate(text string) error {
	spoken := 0
	for _, l := range Parse(text) {
		if l.Role == Unrecognized {
			if l.Text != "" {
				return fmt.Errorf("line %d has no Host:/Expert: label", l.Number)
			}
			continue
		}
		if l.Spoken() {
			spoken++
		}
	}
	if spoken == 0 {
		return ErrNoDialogue
	}
	return nil
}
