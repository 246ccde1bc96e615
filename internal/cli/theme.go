package cli

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	SkyBlue      = lipgloss.Color("#87CEEB")
	DeepSkyBlue  = lipgloss.Color("#00BFFF")
	LightSkyBlue = lipgloss.Color("#B0E0E6")
	DarkSkyBlue  = lipgloss.Color("#4A90D9")

	White     = lipgloss.Color("#FFFFFF")
	LightGray = lipgloss.Color("#B0B0B0")

	Success = lipgloss.Color("#00FF88")
	Warning = lipgloss.Color("#FFD700")
	Error   = lipgloss.Color("#FF6B6B")

	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Background(DarkSkyBlue).
			Bold(true).
			Padding(0, 2)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(LightSkyBlue).
			Bold(true)

	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(SkyBlue).
			Padding(0, 1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(LightSkyBlue)

	ValueStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(LightGray)
)

const (
	CheckMark = "✓"
	CrossMark = "✗"
	ArrowDown = "↓"
)

// styled is false when stdout is piped; output is then left undecorated so
// bodies and tables stay machine readable.
var styled = term.IsTerminal(int(os.Stdout.Fd()))

func paint(s lipgloss.Style, text string) string {
	if !styled {
		return text
	}
	return s.Render(text)
}

// Divider returns a horizontal divider
func Divider(width int) string {
	return paint(DimStyle, strings.Repeat("─", width))
}

// codeStyle picks a style for an HTTP status code.
func codeStyle(code int) lipgloss.Style {
	switch {
	case code >= 200 && code < 300:
		return SuccessStyle
	case code >= 300 && code < 400:
		return WarningStyle
	default:
		return ErrorStyle
	}
}
