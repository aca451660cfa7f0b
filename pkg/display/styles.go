package display

import (
	"charm.land/lipgloss/v2"
)

// Color palette - ANSI 256 colors
var (
	colorAccent = lipgloss.Color("141") // purple
	colorText   = lipgloss.Color("252")
	colorMuted  = lipgloss.Color("245")

	colorError   = lipgloss.Color("196")
	colorWarning = lipgloss.Color("214")
	colorSuccess = lipgloss.Color("42")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	messageStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 2)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)
