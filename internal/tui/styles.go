package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/secureguard/internal/similarity"
)

const sidebarWidth = 36

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	userLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	botLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("13"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	useStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	filterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	sidebarStyle = lipgloss.NewStyle().
			Width(sidebarWidth).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("8"))

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED"))
)

// bandStyle is the colour a similarity band is drawn in.
func bandStyle(b similarity.Band) lipgloss.Style {
	switch b {
	case similarity.Excellent:
		return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	case similarity.Good:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case similarity.Fair:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	}
}
