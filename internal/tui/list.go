package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/deepakjacob/launchk/internal/domain"
)

// Fixed column widths. The name column takes what is left.
const (
	columnWidthSession = 12
	columnWidthJobType = 30
	columnWidthPID     = 8
	columnWidthLoaded  = 7
	columnGap          = 1

	minNameWidth = 16
)

// listRenderer lays out service rows for a given terminal width.
type listRenderer struct {
	theme Theme
	width int
}

func (r listRenderer) nameWidth() int {
	w := r.width - columnWidthSession - columnWidthJobType - columnWidthPID - columnWidthLoaded - 4*columnGap
	if w < minNameWidth {
		return minNameWidth
	}
	return w
}

func (r listRenderer) header() string {
	line := r.layout("NAME", "SESSION", "JOB TYPE", "PID", "LOADED")
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(r.theme.HeaderForeground).
		Render(line)
}

func (r listRenderer) row(item domain.ServiceListItem, selected bool) string {
	session := item.Status.Session.String()
	if !item.Loaded() && item.Status.Plist == nil {
		session = "-"
	}

	pid := "-"
	if p := item.Status.PID(); p != 0 {
		pid = fmt.Sprintf("%d", p)
	}

	loaded := "no"
	if item.Loaded() {
		loaded = "yes"
	}

	line := r.layout(item.Name, session, item.JobType.String(), pid, loaded)

	style := lipgloss.NewStyle().Foreground(r.theme.NormalText)
	switch {
	case selected:
		style = style.
			Background(r.theme.SelectedBackground).
			Foreground(r.theme.SelectedForeground).
			Bold(true)
	case item.JobType.Intersects(domain.JobDisabled):
		style = style.Foreground(r.theme.Disabled)
	case item.Status.PID() != 0:
		style = style.Foreground(r.theme.Loaded)
	case !item.Loaded():
		style = style.Foreground(r.theme.FaintText)
	}
	return style.Render(line)
}

func (r listRenderer) layout(name, session, jobType, pid, loaded string) string {
	gap := strings.Repeat(" ", columnGap)
	return strings.Join([]string{
		pad(name, r.nameWidth()),
		pad(session, columnWidthSession),
		pad(jobType, columnWidthJobType),
		pad(pid, columnWidthPID),
		pad(loaded, columnWidthLoaded),
	}, gap)
}

// pad truncates or right-pads s to exactly width cells.
func pad(s string, width int) string {
	if lipgloss.Width(s) > width {
		runes := []rune(s)
		for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
			runes = runes[:len(runes)-1]
		}
		return string(runes) + "…"
	}
	return s + strings.Repeat(" ", width-lipgloss.Width(s))
}
