// Package ui holds the color themes for the playlog dashboard.
package ui

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Name      string
	Accent    lipgloss.Style
	Dim       lipgloss.Style
	Text      lipgloss.Style
	Title     lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Border    lipgloss.Style
	Highlight lipgloss.Style
}

// themeRegistry maps theme names to constructors.
var themeRegistry = map[string]func() Theme{
	"default": Default,
	"nord":    Nord,
	"green":   GreenTerminal,
	"mono":    Monochrome,
	"nocolor": NoColor,
}

// ThemeNames returns the available theme names, sorted.
func ThemeNames() []string {
	names := make([]string, 0, len(themeRegistry))
	for name := range themeRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetTheme returns a theme by name. Returns Default if name not found.
func GetTheme(name string, noColor bool) Theme {
	// NO_COLOR overrides theme selection
	if noColor {
		return NoColor()
	}
	if fn, ok := themeRegistry[name]; ok {
		return fn()
	}
	return Default()
}

// ValidTheme returns true if the theme name is valid.
func ValidTheme(name string) bool {
	_, ok := themeRegistry[name]
	return ok
}

// Default is the colorful theme used unless configured otherwise.
func Default() Theme {
	return Theme{
		Name:      "default",
		Accent:    lipgloss.NewStyle().Foreground(lipgloss.Color("#1DB954")).Bold(true),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6F93")),
		Text:      lipgloss.NewStyle().Foreground(lipgloss.Color("#E6E6FA")),
		Title:     lipgloss.NewStyle().Foreground(lipgloss.Color("#8EEBFF")).Bold(true),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F56")).Bold(true),
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("#5CFF5C")).Bold(true),
		Warning:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD166")).Bold(true),
		Border:    lipgloss.NewStyle().Foreground(lipgloss.Color("#7C7CFF")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA7C4")).Bold(true),
	}
}

// Nord uses the Nord palette.
func Nord() Theme {
	nord3 := lipgloss.Color("#4C566A")
	nord4 := lipgloss.Color("#D8DEE9")
	nord6 := lipgloss.Color("#ECEFF4")
	nord8 := lipgloss.Color("#88C0D0")
	nord9 := lipgloss.Color("#81A1C1")
	nord11 := lipgloss.Color("#BF616A")
	nord13 := lipgloss.Color("#EBCB8B")
	nord14 := lipgloss.Color("#A3BE8C")

	return Theme{
		Name:      "nord",
		Accent:    lipgloss.NewStyle().Foreground(nord8).Bold(true),
		Dim:       lipgloss.NewStyle().Foreground(nord3),
		Text:      lipgloss.NewStyle().Foreground(nord4),
		Title:     lipgloss.NewStyle().Foreground(nord9).Bold(true),
		Error:     lipgloss.NewStyle().Foreground(nord11).Bold(true),
		Success:   lipgloss.NewStyle().Foreground(nord14).Bold(true),
		Warning:   lipgloss.NewStyle().Foreground(nord13).Bold(true),
		Border:    lipgloss.NewStyle().Foreground(nord3),
		Highlight: lipgloss.NewStyle().Foreground(nord6).Bold(true),
	}
}

// GreenTerminal is a classic green-on-black terminal theme.
func GreenTerminal() Theme {
	brightGreen := lipgloss.Color("#00FF00")
	mediumGreen := lipgloss.Color("#00CC00")
	darkGreen := lipgloss.Color("#008800")
	dimGreen := lipgloss.Color("#005500")

	return Theme{
		Name:      "green",
		Accent:    lipgloss.NewStyle().Foreground(brightGreen).Bold(true),
		Dim:       lipgloss.NewStyle().Foreground(dimGreen),
		Text:      lipgloss.NewStyle().Foreground(mediumGreen),
		Title:     lipgloss.NewStyle().Foreground(brightGreen).Bold(true),
		Error:     lipgloss.NewStyle().Foreground(brightGreen).Bold(true).Reverse(true),
		Success:   lipgloss.NewStyle().Foreground(brightGreen).Bold(true),
		Warning:   lipgloss.NewStyle().Foreground(mediumGreen).Bold(true),
		Border:    lipgloss.NewStyle().Foreground(darkGreen),
		Highlight: lipgloss.NewStyle().Foreground(brightGreen).Bold(true).Underline(true),
	}
}

// Monochrome is a grayscale theme.
func Monochrome() Theme {
	return Theme{
		Name:      "mono",
		Accent:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		Text:      lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC")),
		Title:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true).Underline(true),
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC")).Bold(true),
		Warning:   lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Bold(true),
		Border:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true).Underline(true),
	}
}

// NoColor is a high-contrast theme for NO_COLOR environments.
// Uses only bold and reverse instead of colors.
func NoColor() Theme {
	reset := lipgloss.NewStyle()
	return Theme{
		Name:      "nocolor",
		Accent:    reset.Bold(true),
		Dim:       reset,
		Text:      reset,
		Title:     reset.Bold(true),
		Error:     reset.Bold(true),
		Success:   reset.Bold(true),
		Warning:   reset.Bold(true),
		Border:    reset,
		Highlight: reset.Reverse(true),
	}
}
