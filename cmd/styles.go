package cmd

import "github.com/charmbracelet/lipgloss"

// Semantic color palette.
var (
	colorPrimary = lipgloss.Color("#00BFFF") // Cyan — headings
	colorSuccess = lipgloss.Color("#00E676") // Green — safe / ok
	colorDanger  = lipgloss.Color("#FF5252") // Red — unsafe / failed
	colorAccent  = lipgloss.Color("#FFD700") // Gold — values needing attention
	colorMuted   = lipgloss.Color("#8C8C8C") // Gray — timestamps, de-emphasized
)

var (
	styleHeading = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleSafe = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	styleUnsafe = lipgloss.NewStyle().
			Foreground(colorDanger).
			Bold(true)

	styleAccent = lipgloss.NewStyle().
			Foreground(colorAccent)

	styleMuted = lipgloss.NewStyle().
			Foreground(colorMuted)
)

const (
	iconOK     = "✓"
	iconFailed = "✗"
)
