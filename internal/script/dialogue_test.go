package script

import (
	"errors"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		in       string
		wantRole Role
		wantText string
	}{
		{"Host:Hello", Host, "Hello"},
		{"Expert:  Hi there ", Expert, "Hi there"},
		{"Host:Bye\r", Host, "Bye"},
		{"Narrator:skip me", Unrecognized, "Narrator:skip me"},
		{"host:lowercase", Unrecognized, "host:lowercase"},
		{" Host:leading space", Unrecognized, "Host:leading space"},
		{"Host:", Host, ""},
		{"", Unrecognized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseLine(tt.in)
			if got.Role != tt.wantRole || got.Text != tt.wantText {
				t.Errorf("ParseLine(%q) = {%v %q}, want {%v %q}", tt.in, got.Role, got.Text, tt.wantRole, tt.wantText)
			}
		})
	}
}

func TestDialogueFiltersUnrecognized(t *testing.T) {
	lines := Dialogue("Host:Hello\nExpert:Hi there\nNarrator:skip me\nHost:Bye")
	want := []struct {
		role Role
		text string
		num  int
	}{
		{Host, "Hello", 1},
		{Expert, "Hi there", 2},
		{Host, "Bye", 4},
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i, w := range want {
		if lines[i].Role != w.role || lines[i].Text != w.text || lines[i].Number != w.num {
			t.Errorf("line %d = %+v, want %+v", i, lines[i], w)
		}
	}
}

func TestDialogueSkipsEmptyText(t *testing.T) {
	if got := Dialogue("Host:\nExpert:   \n"); len(got) != 0 {
		t.Errorf("Dialogue() = %+v, want none", got)
	}
}

func TestNormalize(t *testing.T) {
	in := "**Host:** Welcome to the show!\n\nEXPERT: Thanks.\n(sound of bubbles)\nExpert:Plain\nHost (Alex): aside\n"
	got, dropped := Normalize(in)
	want := "Host:Welcome to the show!\nExpert:Thanks.\nExpert:Plain"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if err := Validate(got); err != nil {
		t.Errorf("Validate(normalized) = %v", err)
	}
}

func TestNormalizeKeepsTextEmphasis(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bold label", "**Host:** Welcome", "Host:Welcome"},
		{"bold word at end", "**Host:** Light is **refracted**", "Host:Light is **refracted**"},
		{"subscript underscores", "HOST: use the formula a_b_", "Host:use the formula a_b_"},
		{"whole line bold", "**Host: hi**", "Host:hi"},
		{"whole line italic with inner emphasis", "*Expert: the *bold* bit*", "Expert:the *bold* bit"},
		{"bold label trailing star", "**Expert**: 2*", "Expert:2*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, dropped := Normalize(tt.in)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if dropped != 0 {
				t.Errorf("dropped = %d, want 0", dropped)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
		noDia   bool
	}{
		{"ok", "Host:a\n\nExpert:b", false, false},
		{"stray line", "Host:a\nNarrator:b", true, false},
		{"empty", "\n  \n", true, true},
		{"labels only", "Host:\nExpert:", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.noDia && !errors.Is(err, ErrNoDialogue) {
				t.Errorf("Validate() error = %v, want ErrNoDialogue", err)
			}
		})
	}
}
