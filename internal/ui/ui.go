package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/songsift/songsift/internal/shared"
	"github.com/songsift/songsift/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	URLInputView ViewState = iota
	ConfirmView
	RunView
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	ctx            context.Context
	view           ViewState
	engine         tasks.Engine
	opts           tasks.RunOpts
	playlist       shared.PlaylistConfig
	width          int
	height         int
	urlInput       textinput.Model
	unresolvedList list.Model
	progressChan   chan tasks.ProgressUpdate
	progress       tasks.ProgressUpdate
	result         *tasks.RunResult
	err            error
	help           help.Model
	keys           keyMap
}

// NewModel creates a new TUI model with the provided dependencies. The URL
// from opts pre-fills the input so a run started from the command line can be
// confirmed without retyping.
func NewModel(ctx context.Context, engine tasks.Engine, opts tasks.RunOpts, playlist shared.PlaylistConfig) *Model {
	input := textinput.New()
	input.Placeholder = "https://www.youtube.com/@creator/videos"
	input.CharLimit = 256
	input.SetValue(opts.URL)
	input.Focus()

	return &Model{
		ctx:      ctx,
		view:     URLInputView,
		engine:   engine,
		opts:     opts,
		playlist: playlist,
		urlInput: input,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init starts the cursor blink in the URL input.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.urlInput.Width = msg.Width - 6
		if m.hasUnresolved() {
			m.unresolvedList.SetSize(msg.Width-4, msg.Height-12)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case URLInputView:
			return m.handleURLInputKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case runCompleteMsg:
		m.result = msg.result
		m.err = msg.err
		m.progressChan = nil
		m.view = ResultView
		if m.hasUnresolved() {
			items := make([]list.Item, len(m.result.Unresolved))
			for i, record := range m.result.Unresolved {
				items[i] = unresolvedItem{record: record}
			}
			m.unresolvedList = list.New(items, list.NewDefaultDelegate(), 0, 0)
			m.unresolvedList.Title = "Unresolved tracks"
			m.unresolvedList.SetSize(m.width-4, m.height-12)
		}
		return m, nil
	}

	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.error.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case URLInputView:
		return m.renderURLInput()
	case ConfirmView:
		return m.renderConfirm()
	case RunView:
		return m.renderRun()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

// hasUnresolved reports whether the result view owns a populated list. The
// unresolved list is only constructed after a run completes, so sizing and
// key handling must stay away from it until then.
func (m *Model) hasUnresolved() bool {
	return m.result != nil && len(m.result.Unresolved) > 0
}

func (m *Model) handleURLInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "enter":
		url := strings.TrimSpace(m.urlInput.Value())
		if url == "" {
			return m, nil
		}
		m.opts.URL = url
		m.view = ConfirmView
		return m, nil
	}

	var cmd tea.Cmd
	m.urlInput, cmd = m.urlInput.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "n", "esc":
		m.view = URLInputView
		return m, textinput.Blink
	case "y", "enter":
		m.view = RunView
		return m, m.startRun()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		m.view = URLInputView
		m.result = nil
		m.err = nil
		m.progress = tasks.ProgressUpdate{}
		m.urlInput.Focus()
		return m, textinput.Blink
	}

	if !m.hasUnresolved() {
		return m, nil
	}
	var cmd tea.Cmd
	m.unresolvedList, cmd = m.unresolvedList.Update(msg)
	return m, cmd
}

func (m *Model) startRun() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	progress := m.progressChan

	go func() {
		result, err := m.engine.Run(m.ctx, m.opts, progress)
		m.result = result
		m.err = err
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		if m.progressChan == nil {
			return runCompleteMsg{result: m.result, err: m.err}
		}

		update, ok := <-m.progressChan
		if !ok {
			return runCompleteMsg{result: m.result, err: m.err}
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderURLInput() string {
	title := styles.title.Render("Which page should be sifted?")
	hint := styles.help.Render("Video titles from this page are classified and placed into your playlist")

	quitKey := key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "quit"))
	helpKeys := []key.Binding{m.keys.enter, quitKey}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, m.urlInput.View(), hint, helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Sift titles into '%s'?", m.playlist.Name))
	info := fmt.Sprintf("\nPage: %s\nPlaylist: %s\nFull listing: %t\n", m.opts.URL, m.playlist.Name, m.opts.Full)
	if m.opts.ReportPath != "" {
		info += fmt.Sprintf("Unresolved report: %s\n", m.opts.ReportPath)
	}

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderRun() string {
	title := styles.title.Render("Sifting")

	var phase string
	switch m.progress.Phase {
	case tasks.FetchTitles:
		phase = "Fetching titles..."
	case tasks.FilterTitles:
		phase = "Filtering known titles..."
	case tasks.ClassifyTitles:
		phase = fmt.Sprintf("Classifying titles (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.ReconcileTracks:
		phase = fmt.Sprintf("Reconciling tracks (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.WriteReport:
		phase = "Writing the unresolved report..."
	case tasks.PersistRecords:
		phase = "Updating the record store..."
	default:
		phase = "Processing..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, m.progress.Message)
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.error.Render(fmt.Sprintf("Run failed: %v\n\nPress r to retry, q to quit", m.err))
	}

	if m.result == nil {
		return styles.error.Render("No result available\n\nPress r to retry, q to quit")
	}

	title := styles.success.Render("✓ Run Complete!")
	info := fmt.Sprintf(
		"\nChannel: %s\nScraped: %d titles (%d new)\nAppended: %d, already present: %d",
		m.result.Channel,
		m.result.Scraped,
		m.result.Fresh,
		m.result.Appended,
		m.result.AlreadyPresent,
	)
	if m.result.ReportPath != "" {
		info += fmt.Sprintf("\nUnresolved report: %s", m.result.ReportPath)
	}
	if !m.result.RecordSynced {
		info += fmt.Sprintf("\n%s", styles.warning.Render("Record store update failed, the next run will reprocess these titles"))
	}

	var unresolved string
	if m.hasUnresolved() {
		unresolved = fmt.Sprintf("\n\n%s", m.unresolvedList.View())
	}

	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	if m.hasUnresolved() {
		helpKeys = []key.Binding{m.keys.up, m.keys.down, m.keys.restart, m.keys.quit}
	}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, unresolved, helpView)
}
