package commands

import "github.com/charmbracelet/lipgloss"

// styles is the CLI color scheme.
var styles = struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Value lipgloss.Style
	Dim   lipgloss.Style
	Warn  lipgloss.Style
}{
	Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f")),
	Label: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f")),
	Value: lipgloss.NewStyle().Foreground(lipgloss.Color("#e6edf3")),
	Dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")),
	Warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#f0883e")),
}
