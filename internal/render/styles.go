package render

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles is the ANSI decoration for rendered lines. Built once at startup
// from the color configuration and passed to the Renderer; never global.
type Styles struct {
	Timestamp lipgloss.Style
	NewTag    lipgloss.Style
	EditTag   lipgloss.Style
	DeleteTag lipgloss.Style
	Chat      lipgloss.Style
	MessageID lipgloss.Style
	Author    lipgloss.Style
	Added     lipgloss.Style
	Removed   lipgloss.Style
	Media     lipgloss.Style
}

// NewStyles builds the style set. The color profile is pinned explicitly so
// rendering is identical whether the line goes to a terminal or a file:
// ANSI when colors are enabled, plain text otherwise.
func NewStyles(colors bool) Styles {
	r := lipgloss.NewRenderer(io.Discard)
	if colors {
		r.SetColorProfile(termenv.ANSI)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	gray := lipgloss.Color("8")
	return Styles{
		Timestamp: r.NewStyle().Foreground(gray),
		NewTag:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("4")),
		EditTag:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		DeleteTag: r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		Chat:      r.NewStyle().Bold(true).Foreground(gray),
		MessageID: r.NewStyle().Foreground(gray),
		Author:    r.NewStyle().Bold(true),
		Added:     r.NewStyle().Foreground(lipgloss.Color("2")),
		Removed:   r.NewStyle().Foreground(lipgloss.Color("1")),
		Media:     r.NewStyle().Foreground(lipgloss.Color("5")),
	}
}
