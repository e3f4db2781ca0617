// Package theme holds the terminal styles used by the chatrelay CLI.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Colors is a color palette.
type Colors struct {
	Primary    lipgloss.Color
	Text       lipgloss.Color
	TextMuted  lipgloss.Color
	Error      lipgloss.Color
	Background lipgloss.Color
}

// CurrentTheme is the palette styles are built from.
var CurrentTheme = Colors{
	Primary:    lipgloss.Color("#00ff00"),
	Text:       lipgloss.Color("#ffffff"),
	TextMuted:  lipgloss.Color("#808080"),
	Error:      lipgloss.Color("#ff5f5f"),
	Background: lipgloss.Color("#000000"),
}

// SetTheme sets the current theme
func SetTheme(colors Colors) {
	CurrentTheme = colors
}

// Styles are the rendered styles of the CLI.
type Styles struct {
	Prompt    lipgloss.Style
	Assistant lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Header    lipgloss.Style
}

// NewStyles builds styles from the current theme.
func NewStyles() Styles {
	c := CurrentTheme
	return Styles{
		Prompt:    lipgloss.NewStyle().Foreground(c.Primary).Bold(true),
		Assistant: lipgloss.NewStyle().Foreground(c.Text),
		Muted:     lipgloss.NewStyle().Foreground(c.TextMuted),
		Error:     lipgloss.NewStyle().Foreground(c.Error).Bold(true),
		Header:    lipgloss.NewStyle().Foreground(c.Primary).Bold(true).Underline(true),
	}
}

// Wrap word-wraps text to width columns; width <= 0 leaves it untouched.
// Existing line breaks are kept.
func Wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if ansi.StringWidth(line) > width {
			lines[i] = ansi.Wordwrap(line, width, "-")
		}
	}
	return strings.Join(lines, "\n")
}
