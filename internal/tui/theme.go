package tui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette. All colors are ANSI 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	Loaded   lipgloss.Color // PID column of running jobs.
	Disabled lipgloss.Color

	StatusError lipgloss.Color
	StatusInfo  lipgloss.Color

	DialogBorder lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	Loaded:   lipgloss.Color("114"), // green
	Disabled: lipgloss.Color("208"), // orange

	StatusError: lipgloss.Color("196"), // red
	StatusInfo:  lipgloss.Color("75"),  // blue

	DialogBorder: lipgloss.Color("141"), // light purple
}
