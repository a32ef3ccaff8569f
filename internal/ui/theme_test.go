package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestColorThemes(t *testing.T) {
	for _, fn := range []func() Theme{Default, Nord, GreenTerminal, Monochrome} {
		theme := fn()
		if !ValidTheme(theme.Name) {
			t.Errorf("theme %q is not registered", theme.Name)
		}
		if _, ok := theme.Accent.GetForeground().(lipgloss.NoColor); ok {
			t.Errorf("%s should have colors", theme.Name)
		}
	}
}

func TestNoColor(t *testing.T) {
	theme := NoColor()
	if theme.Name != "nocolor" {
		t.Errorf("expected name 'nocolor', got %q", theme.Name)
	}
	// NoColor should use bold for title
	if !theme.Title.GetBold() {
		t.Error("NoColor should use bold for title")
	}
}

func TestGetTheme(t *testing.T) {
	tests := []struct {
		name     string
		noColor  bool
		expected string
	}{
		{"default", false, "default"},
		{"nord", false, "nord"},
		{"green", false, "green"},
		{"mono", false, "mono"},
		{"nocolor", false, "nocolor"},
		{"invalid", false, "default"}, // falls back to default
		{"nord", true, "nocolor"},     // noColor overrides
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			theme := GetTheme(tt.name, tt.noColor)
			if theme.Name != tt.expected {
				t.Errorf("GetTheme(%q, %v) = %q, want %q", tt.name, tt.noColor, theme.Name, tt.expected)
			}
		})
	}
}

func TestValidTheme(t *testing.T) {
	if ValidTheme("invalid") {
		t.Error("ValidTheme('invalid') should be false")
	}
}

func TestThemeNames(t *testing.T) {
	names := ThemeNames()
	if len(names) != 5 {
		t.Errorf("expected 5 themes, got %d", len(names))
	}
	if names[0] != "default" {
		t.Errorf("names should be sorted, got %v", names)
	}
}
