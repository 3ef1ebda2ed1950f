// Package tui is the interactive service browser. It is a bubbletea
// program over a Lister (the presentation merge) and a CommandHandler
// (the command resolver); launchd itself is never touched from here.
//
// Commands typed in the omnibox are handed to the CommandHandler off the
// event loop. Their follow-ups come back as messages: prompts and
// confirmations open dialogs, anything else is handed back to the
// CommandHandler. Edits run through tea.Exec so the editor owns the
// terminal while it runs.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/deepakjacob/launchk/internal/domain"
	"github.com/deepakjacob/launchk/internal/usecase"
)

// Lister produces the rows to display.
type Lister interface {
	Items(nameFilter string, jobFilter domain.JobTypeFilter) []domain.ServiceListItem
}

// Options configures a Model.
type Options struct {
	Lister  Lister
	Handler domain.CommandHandler
	// Updates is signalled whenever the loaded set changes. May be nil.
	Updates <-chan struct{}
	// JobFilter is the initial job type filter.
	JobFilter domain.JobTypeFilter
	// Domains are offered by the prompt dialog. Defaults to
	// domain.PromptDomains().
	Domains []domain.DomainType
	Logger  *zap.Logger
}

type mode int

const (
	modeList mode = iota
	modeFilter
	modeJobFilter
	modeOmnibox
	modePrompt
	modeConfirm
	modePager
)

// Rows taken by chrome: top bar, column header, separator, status, help.
const chromeHeight = 5

// eventBuffer bounds pager and surface events queued while the loop is busy.
const eventBuffer = 8

type (
	refreshMsg struct{}

	showPagerMsg struct {
		title string
		body  string
	}

	clearScreenMsg struct{}

	commandResultMsg struct {
		target *domain.ServiceListItem
		cmd    domain.Command
		next   domain.Command
		err    error
	}
)

// Model is the bubbletea model for the service browser.
type Model struct {
	ctx     context.Context
	lister  Lister
	handler domain.CommandHandler
	updates <-chan struct{}
	events  chan tea.Msg
	logger  *zap.Logger
	domains []domain.DomainType

	keys  KeyMap
	theme Theme

	width  int
	height int
	ready  bool

	mode      mode
	items     []domain.ServiceListItem
	cursor    int
	offset    int
	filter    textinput.Model
	jobFilter domain.JobTypeFilter
	omnibox   textinput.Model

	// target is the row a prompt or confirmation was opened for.
	target  *domain.ServiceListItem
	prompt  *promptDialog
	confirm *confirmDialog

	pager      viewport.Model
	pagerTitle string

	status      string
	statusError bool
	busy        bool
}

// NewModel creates the browser. Rows are loaded immediately so the first
// frame is not empty.
func NewModel(ctx context.Context, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	domains := opts.Domains
	if len(domains) == 0 {
		domains = domain.PromptDomains()
	}

	filter := textinput.New()
	filter.Prompt = "/"
	filter.Placeholder = "name"

	omnibox := textinput.New()
	omnibox.Prompt = ":"
	omnibox.Placeholder = "command"

	model := Model{
		ctx:       ctx,
		lister:    opts.Lister,
		handler:   opts.Handler,
		updates:   opts.Updates,
		events:    make(chan tea.Msg, eventBuffer),
		logger:    logger,
		domains:   domains,
		keys:      DefaultKeyMap,
		theme:     DefaultTheme,
		filter:    filter,
		jobFilter: opts.JobFilter,
		omnibox:   omnibox,
		pager:     viewport.New(0, 0),
	}
	model.refresh()
	return model
}

// Pager returns a domain.Pager that shows text inside the running program.
func (model Model) Pager() domain.Pager {
	return screenPager{events: model.events}
}

// Surface returns the domain.Surface the command resolver clears after an
// external editor exits.
func (model Model) Surface() domain.Surface {
	return screenSurface{events: model.events}
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return tea.Batch(
		listenForUpdates(model.updates),
		listenForEvents(model.events),
	)
}

func listenForUpdates(updates <-chan struct{}) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return refreshMsg{}
	}
}

func listenForEvents(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.pager.Width = message.Width
		model.pager.Height = max(message.Height-2, 1)
		model.ensureVisible()
		return model, nil

	case refreshMsg:
		model.refresh()
		return model, listenForUpdates(model.updates)

	case showPagerMsg:
		model.pagerTitle = message.title
		model.pager.SetContent(message.body)
		model.pager.GotoTop()
		model.mode = modePager
		return model, listenForEvents(model.events)

	case clearScreenMsg:
		return model, tea.Batch(tea.ClearScreen, listenForEvents(model.events))

	case commandResultMsg:
		return model.handleResult(message)

	case tea.KeyMsg:
		switch model.mode {
		case modeFilter:
			return model.handleFilterKeys(message)
		case modeJobFilter:
			return model.handleJobFilterKeys(message)
		case modeOmnibox:
			return model.handleOmniboxKeys(message)
		case modePrompt:
			return model.handlePromptKeys(message)
		case modeConfirm:
			return model.handleConfirmKeys(message)
		case modePager:
			return model.handlePagerKeys(message)
		}
		return model.handleListKeys(message)
	}

	// Cursor blink and similar ticks for whichever input is focused.
	var cmd tea.Cmd
	switch model.mode {
	case modeFilter:
		model.filter, cmd = model.filter.Update(message)
	case modeOmnibox:
		model.omnibox, cmd = model.omnibox.Update(message)
	}
	return model, cmd
}

func (model Model) handleListKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Filter):
		model.mode = modeFilter
		cmd := model.filter.Focus()
		return model, cmd

	case key.Matches(message, model.keys.JobFilter):
		model.mode = modeJobFilter

	case key.Matches(message, model.keys.Omnibox):
		model.mode = modeOmnibox
		model.omnibox.Reset()
		cmd := model.omnibox.Focus()
		return model, cmd

	case key.Matches(message, model.keys.Cancel):
		if model.filter.Value() != "" {
			model.filter.Reset()
			model.refresh()
		}

	case key.Matches(message, model.keys.Up):
		model.moveCursor(-1)
	case key.Matches(message, model.keys.Down):
		model.moveCursor(1)
	case key.Matches(message, model.keys.PageUp):
		model.moveCursor(-model.listHeight())
	case key.Matches(message, model.keys.PageDown):
		model.moveCursor(model.listHeight())
	case key.Matches(message, model.keys.Home):
		model.moveCursor(-len(model.items))
	case key.Matches(message, model.keys.End):
		model.moveCursor(len(model.items))
	}
	return model, nil
}

func (model Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case message.Type == tea.KeyCtrlC:
		return model, tea.Quit

	case key.Matches(message, model.keys.Cancel):
		model.filter.Reset()
		model.filter.Blur()
		model.mode = modeList
		model.refresh()
		return model, nil

	case key.Matches(message, model.keys.Accept):
		model.filter.Blur()
		model.mode = modeList
		return model, nil
	}

	var cmd tea.Cmd
	model.filter, cmd = model.filter.Update(message)
	model.refresh()
	return model, cmd
}

func (model Model) handleJobFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case message.Type == tea.KeyCtrlC:
		return model, tea.Quit

	case key.Matches(message, model.keys.Cancel),
		key.Matches(message, model.keys.Accept),
		key.Matches(message, model.keys.JobFilter):
		model.mode = modeList
		return model, nil

	case message.Type == tea.KeyRunes && len(message.Runes) == 1:
		r := message.Runes[0]
		flags := domain.JobTypeFlags()
		switch {
		case r == '0':
			model.jobFilter = 0
		case r >= '1' && int(r-'1') < len(flags):
			model.jobFilter = model.jobFilter.Toggle(flags[r-'1'])
		default:
			return model, nil
		}
		model.refresh()
	}
	return model, nil
}

func (model Model) handleOmniboxKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case message.Type == tea.KeyCtrlC:
		return model, tea.Quit

	case key.Matches(message, model.keys.Cancel):
		model.omnibox.Blur()
		model.mode = modeList
		return model, nil

	case key.Matches(message, model.keys.Accept):
		model.omnibox.Blur()
		model.mode = modeList
		entry, err := domain.LookupCommand(model.omnibox.Value())
		if err != nil {
			model.setError(err)
			return model, nil
		}
		cmd := model.dispatch(model.selected(), entry.Command)
		return model, cmd
	}

	var cmd tea.Cmd
	model.omnibox, cmd = model.omnibox.Update(message)
	return model, cmd
}

func (model Model) handlePromptKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case message.Type == tea.KeyCtrlC:
		return model, tea.Quit

	case key.Matches(message, model.keys.Cancel):
		model.closeDialogs()
		model.setInfo("cancelled")

	case key.Matches(message, model.keys.Up):
		model.prompt.move(-1)
	case key.Matches(message, model.keys.Down):
		model.prompt.move(1)
	case key.Matches(message, model.keys.Switch):
		model.prompt.switchColumn()

	case key.Matches(message, model.keys.Accept):
		prompt, target := model.prompt.prompt, model.target
		d, s := model.prompt.answer()
		model.closeDialogs()
		next, err := usecase.ApplyPrompt(prompt, d, s)
		if err != nil {
			model.setError(err)
			return model, nil
		}
		cmd := model.dispatch(target, next)
		return model, cmd
	}
	return model, nil
}

func (model Model) handleConfirmKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case message.Type == tea.KeyCtrlC:
		return model, tea.Quit

	case key.Matches(message, model.keys.Accept), isRune(message, 'y'):
		cmds, target := model.confirm.confirm.Commands, model.target
		model.closeDialogs()
		cmd := model.dispatch(target, domain.Chain(cmds...))
		return model, cmd

	case key.Matches(message, model.keys.Cancel), isRune(message, 'n'):
		model.closeDialogs()
		model.setInfo("cancelled")
	}
	return model, nil
}

func (model Model) handlePagerKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case message.Type == tea.KeyCtrlC:
		return model, tea.Quit
	case key.Matches(message, model.keys.Cancel), isRune(message, 'q'):
		model.mode = modeList
		model.pager.SetContent("")
		return model, nil
	}
	var cmd tea.Cmd
	model.pager, cmd = model.pager.Update(message)
	return model, cmd
}

func isRune(message tea.KeyMsg, r rune) bool {
	return message.Type == tea.KeyRunes && len(message.Runes) == 1 && message.Runes[0] == r
}

// dispatch routes one command. Dialog-opening commands are handled here;
// everything else goes to the handler off the event loop.
func (model *Model) dispatch(target *domain.ServiceListItem, cmd domain.Command) tea.Cmd {
	switch cmd.Kind {
	case domain.CmdNone:
		return nil

	case domain.CmdQuit:
		return tea.Quit

	case domain.CmdFocusServiceList:
		model.closeDialogs()
		return nil

	case domain.CmdDomainSessionPrompt:
		model.target = target
		model.prompt = newPromptDialog(cmd, model.domains)
		model.mode = modePrompt
		model.setInfo("")
		return nil

	case domain.CmdConfirm:
		model.target = target
		model.confirm = &confirmDialog{confirm: cmd}
		model.mode = modeConfirm
		model.setInfo("")
		return nil

	case domain.CmdEdit:
		run := &handlerExec{ctx: model.ctx, handler: model.handler, target: target, cmd: cmd}
		model.busy = true
		return tea.Exec(run, func(err error) tea.Msg {
			return commandResultMsg{target: target, cmd: cmd, next: run.next, err: err}
		})
	}

	model.busy = true
	model.setInfo("running " + cmd.String())
	ctx, handler := model.ctx, model.handler
	return func() tea.Msg {
		next, err := handler.Handle(ctx, target, cmd)
		return commandResultMsg{target: target, cmd: cmd, next: next, err: err}
	}
}

func (model Model) handleResult(message commandResultMsg) (tea.Model, tea.Cmd) {
	model.busy = false
	if message.err != nil {
		model.logger.Debug("command failed",
			zap.Stringer("command", message.cmd),
			zap.Error(message.err))
		model.setError(message.err)
		model.refresh()
		return model, nil
	}
	if message.next.IsZero() {
		name := ""
		if message.target != nil {
			name = message.target.Name
		}
		model.setInfo(strings.TrimSpace(fmt.Sprintf("%s %s: ok", message.cmd.Kind, name)))
		model.refresh()
		return model, nil
	}
	cmd := model.dispatch(message.target, message.next)
	return model, cmd
}

func (model *Model) closeDialogs() {
	model.prompt = nil
	model.confirm = nil
	model.target = nil
	model.mode = modeList
}

func (model *Model) setError(err error) {
	model.status = err.Error()
	model.statusError = true
}

func (model *Model) setInfo(text string) {
	model.status = text
	model.statusError = false
}

// selected returns a copy of the highlighted row, or nil.
func (model *Model) selected() *domain.ServiceListItem {
	if model.cursor < 0 || model.cursor >= len(model.items) {
		return nil
	}
	item := model.items[model.cursor]
	return &item
}

// refresh rebuilds the rows and keeps the highlighted label selected
// when it survives the rebuild.
func (model *Model) refresh() {
	var label string
	if item := model.selected(); item != nil {
		label = item.Name
	}

	model.items = model.lister.Items(model.filter.Value(), model.jobFilter)

	if label != "" {
		for i, item := range model.items {
			if item.Name == label {
				model.cursor = i
				model.ensureVisible()
				return
			}
		}
	}
	model.cursor = clamp(model.cursor, 0, len(model.items)-1)
	model.ensureVisible()
}

func (model *Model) moveCursor(delta int) {
	model.cursor = clamp(model.cursor+delta, 0, len(model.items)-1)
	model.ensureVisible()
}

func (model *Model) listHeight() int {
	return max(model.height-chromeHeight, 1)
}

func (model *Model) ensureVisible() {
	height := model.listHeight()
	if model.cursor < model.offset {
		model.offset = model.cursor
	}
	if model.cursor >= model.offset+height {
		model.offset = model.cursor - height + 1
	}
	model.offset = clamp(model.offset, 0, max(len(model.items)-height, 0))
}

// View implements tea.Model.
func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}
	if model.mode == modePager {
		return model.renderPager()
	}

	renderer := listRenderer{theme: model.theme, width: model.width}
	height := model.listHeight()

	var sections []string
	sections = append(sections, model.renderTopBar())
	sections = append(sections, renderer.header())

	var body string
	switch model.mode {
	case modePrompt:
		body = lipgloss.Place(model.width, height, lipgloss.Center, lipgloss.Center, model.prompt.view(model.theme))
	case modeConfirm:
		body = lipgloss.Place(model.width, height, lipgloss.Center, lipgloss.Center, model.confirm.view(model.theme))
	case modeOmnibox:
		body = lipgloss.NewStyle().Height(height).Render(model.renderCatalog())
	default:
		var rows []string
		end := min(model.offset+height, len(model.items))
		for i := model.offset; i < end; i++ {
			rows = append(rows, renderer.row(model.items[i], i == model.cursor))
		}
		if len(model.items) == 0 {
			rows = append(rows, lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("No services match."))
		}
		body = lipgloss.NewStyle().Height(height).Render(strings.Join(rows, "\n"))
	}
	sections = append(sections, body)

	sections = append(sections, lipgloss.NewStyle().
		Foreground(model.theme.BorderColor).
		Render(strings.Repeat("─", model.width)))
	sections = append(sections, model.renderStatus())
	sections = append(sections, model.renderHelp())

	return strings.Join(sections, "\n")
}

func (model Model) renderTopBar() string {
	switch model.mode {
	case modeFilter:
		return model.filter.View()
	case modeOmnibox:
		return model.omnibox.View()
	case modeJobFilter:
		var parts []string
		for i, flag := range domain.JobTypeFlags() {
			label := fmt.Sprintf("%d %s", i+1, flag)
			style := lipgloss.NewStyle().Foreground(model.theme.FaintText)
			if model.jobFilter.Intersects(flag) {
				style = style.Foreground(model.theme.SelectedForeground).Background(model.theme.SelectedBackground)
			}
			parts = append(parts, style.Render(label))
		}
		return strings.Join(parts, " ") + lipgloss.NewStyle().Foreground(model.theme.HelpText).Render("  0 clear")
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).Render("launchk")
	info := fmt.Sprintf("  %d services  type: %s", len(model.items), model.jobFilter)
	if f := model.filter.Value(); f != "" {
		info += fmt.Sprintf("  filter: %q", f)
	}
	return title + lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(info)
}

func (model Model) renderCatalog() string {
	prefix := strings.ToLower(strings.TrimSpace(model.omnibox.Value()))
	var lines []string
	for _, entry := range domain.Catalog {
		if !strings.HasPrefix(entry.Name, prefix) {
			continue
		}
		name := lipgloss.NewStyle().Bold(true).Foreground(model.theme.NormalText).Render(pad(entry.Name, 10))
		desc := lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(entry.Description)
		lines = append(lines, name+" "+desc)
	}
	return strings.Join(lines, "\n")
}

func (model Model) renderStatus() string {
	if model.status == "" {
		return ""
	}
	color := model.theme.StatusInfo
	if model.statusError {
		color = model.theme.StatusError
	}
	return lipgloss.NewStyle().Foreground(color).Render(pad(model.status, max(model.width, 1)))
}

func (model Model) renderHelp() string {
	bindings := []key.Binding{
		model.keys.Up, model.keys.Down, model.keys.Filter,
		model.keys.JobFilter, model.keys.Omnibox, model.keys.Quit,
	}
	var parts []string
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return lipgloss.NewStyle().Foreground(model.theme.HelpText).Render(strings.Join(parts, "  "))
}

func (model Model) renderPager() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).Render(model.pagerTitle)
	help := lipgloss.NewStyle().Foreground(model.theme.HelpText).
		Render(fmt.Sprintf("%3.f%%  q/Esc close", model.pager.ScrollPercent()*100))
	return title + "\n" + model.pager.View() + "\n" + help
}

// handlerExec runs one command on the event loop while bubbletea has
// released the terminal.
type handlerExec struct {
	ctx     context.Context
	handler domain.CommandHandler
	target  *domain.ServiceListItem
	cmd     domain.Command

	next domain.Command
}

func (e *handlerExec) Run() error {
	next, err := e.handler.Handle(e.ctx, e.target, e.cmd)
	e.next = next
	return err
}

func (e *handlerExec) SetStdin(io.Reader)  {}
func (e *handlerExec) SetStdout(io.Writer) {}
func (e *handlerExec) SetStderr(io.Writer) {}

type screenPager struct {
	events chan<- tea.Msg
}

func (p screenPager) Show(title string, data []byte) error {
	p.events <- showPagerMsg{title: title, body: string(data)}
	return nil
}

type screenSurface struct {
	events chan<- tea.Msg
}

func (s screenSurface) Clear() {
	select {
	case s.events <- clearScreenMsg{}:
	default:
	}
}

// Run starts the program on the alternate screen and blocks until the
// user quits or ctx is canceled.
func Run(ctx context.Context, model Model) error {
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to run ui: %w", err)
	}
	return nil
}

var (
	_ tea.Model       = Model{}
	_ tea.ExecCommand = (*handlerExec)(nil)
	_ domain.Pager    = screenPager{}
	_ domain.Surface  = screenSurface{}
)
