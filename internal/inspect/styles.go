package inspect

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	Accent    = lipgloss.Color("#E5A00D")
	DimGray   = lipgloss.Color("#6B7280")
	LightGray = lipgloss.Color("#9CA3AF")
	White     = lipgloss.Color("#F9FAFB")
	Green     = lipgloss.Color("#10B981")
	Red       = lipgloss.Color("#EF4444")
)

// Text styles
var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	MatchStyle = lipgloss.NewStyle().
			Foreground(Accent).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red)
)

// Status markers
const (
	CurrentChar = "●"
	StaleChar   = "○"
)

// statusStyle colors an HTTP status code.
func statusStyle(status int) lipgloss.Style {
	if status >= 200 && status < 300 {
		return SuccessStyle
	}
	return ErrorStyle
}
