package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/deepakjacob/launchk/internal/domain"
)

// promptDialog collects the domain (and session, unless the prompt is
// domain-only) a pending command should target.
type promptDialog struct {
	prompt   domain.Command
	domains  []domain.DomainType
	sessions []domain.SessionType

	domainCursor  int
	sessionCursor int
	onSessions    bool // Session column has focus.
}

func newPromptDialog(prompt domain.Command, domains []domain.DomainType) *promptDialog {
	return &promptDialog{
		prompt:   prompt,
		domains:  domains,
		sessions: domain.KnownSessionTypes(),
	}
}

func (d *promptDialog) switchColumn() {
	if d.prompt.DomainOnly {
		return
	}
	d.onSessions = !d.onSessions
}

func (d *promptDialog) move(delta int) {
	if d.onSessions {
		d.sessionCursor = clamp(d.sessionCursor+delta, 0, len(d.sessions)-1)
		return
	}
	d.domainCursor = clamp(d.domainCursor+delta, 0, len(d.domains)-1)
}

// answer returns the highlighted choices. The session is SessionUnknown
// for a domain-only prompt.
func (d *promptDialog) answer() (domain.DomainType, domain.SessionType) {
	s := domain.SessionUnknown
	if !d.prompt.DomainOnly {
		s = d.sessions[d.sessionCursor]
	}
	return d.domains[d.domainCursor], s
}

func (d *promptDialog) view(theme Theme) string {
	title := fmt.Sprintf("%s %s", d.prompt.Continuation, d.prompt.Label)

	domainLines := make([]string, len(d.domains))
	for i, dom := range d.domains {
		domainLines[i] = choiceLine(theme, dom.String(), i == d.domainCursor, !d.onSessions)
	}
	columns := []string{column("Domain", domainLines)}

	if !d.prompt.DomainOnly {
		sessionLines := make([]string, len(d.sessions))
		for i, s := range d.sessions {
			sessionLines[i] = choiceLine(theme, s.String(), i == d.sessionCursor, d.onSessions)
		}
		columns = append(columns, column("Session", sessionLines))
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, columns...)
	help := lipgloss.NewStyle().Foreground(theme.HelpText).
		Render("↑/↓ choose  Tab switch  Enter accept  Esc cancel")
	return dialogBox(theme, title, body+"\n\n"+help)
}

// confirmDialog gates a follow-up behind a yes/no answer.
type confirmDialog struct {
	confirm domain.Command
}

func (d *confirmDialog) view(theme Theme) string {
	help := lipgloss.NewStyle().Foreground(theme.HelpText).Render("y/Enter yes  n/Esc no")
	return dialogBox(theme, "Confirm", d.confirm.Message+"\n\n"+help)
}

func choiceLine(theme Theme, text string, highlighted, focused bool) string {
	style := lipgloss.NewStyle().Foreground(theme.NormalText)
	marker := "  "
	if highlighted {
		marker = "> "
		if focused {
			style = style.Background(theme.SelectedBackground).Foreground(theme.SelectedForeground).Bold(true)
		} else {
			style = style.Underline(true)
		}
	}
	return style.Render(marker + text)
}

func column(title string, lines []string) string {
	header := lipgloss.NewStyle().Bold(true).Render(title)
	return lipgloss.NewStyle().PaddingRight(4).Render(header + "\n" + strings.Join(lines, "\n"))
}

func dialogBox(theme Theme, title, body string) string {
	heading := lipgloss.NewStyle().Bold(true).Foreground(theme.HeaderForeground).Render(title)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.DialogBorder).
		Padding(0, 1).
		Render(heading + "\n\n" + body)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
