package ui

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{6})([0-9a-fA-F]{2})?$`)

// defaultHighlight is used when a style declares nothing we can show.
var defaultHighlight = lipgloss.NewStyle().
	Background(lipgloss.Color("226")).
	Foreground(lipgloss.Color("0"))

// HighlightStyle turns a CSS-like declaration list such as
// "background: #f3a6a68c;" into a terminal style. Alpha channels are
// dropped. Unknown properties are ignored.
func HighlightStyle(decl string) lipgloss.Style {
	style := lipgloss.NewStyle()
	var set bool
	for _, part := range strings.Split(decl, ";") {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		switch name {
		case "background", "background-color":
			if c, ok := cssColor(value); ok {
				style = style.Background(c)
				set = true
			}
		case "color":
			if c, ok := cssColor(value); ok {
				style = style.Foreground(c)
				set = true
			}
		case "font-weight":
			if value == "bold" {
				style = style.Bold(true)
				set = true
			}
		case "text-decoration":
			if value == "underline" {
				style = style.Underline(true)
				set = true
			}
		}
	}
	if !set {
		return defaultHighlight
	}
	return style
}

func cssColor(value string) (lipgloss.Color, bool) {
	m := hexColor.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	return lipgloss.Color("#" + m[1]), true
}

// HighlightSegment renders segment within text using style. It reports
// false when text does not contain the segment.
func HighlightSegment(text, segment string, style lipgloss.Style) (string, bool) {
	if segment == "" {
		return text, false
	}
	if i := strings.Index(text, segment); i >= 0 {
		return text[:i] + style.Render(segment) + text[i+len(segment):], true
	}

	// Segments are built from whitespace-collapsed text.
	collapsed := strings.Join(strings.Fields(text), " ")
	if i := strings.Index(collapsed, segment); i >= 0 {
		return collapsed[:i] + style.Render(segment) + collapsed[i+len(segment):], true
	}
	return text, false
}
