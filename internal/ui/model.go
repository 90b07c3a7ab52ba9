package ui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"chipchip/internal/chat"
	"chipchip/internal/events"
	"chipchip/internal/export"
	"chipchip/internal/models"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

type FocusState int

const (
	FocusSidebar FocusState = iota
	FocusChat
)

type mode int

const (
	modeNormal mode = iota
	modeRename
	modeConfirmDelete
)

// Chat is the controller surface the UI drives
type Chat interface {
	Snapshot() chat.Snapshot
	Send(ctx context.Context, question string)
	StartNewChat() string
	LoadChat(id string) error
	DeleteChat(id string) error
	RenameChat(id, newName string) error
	ExportChat(id string, w io.Writer) error
}

// Sessions gives read access to stored sessions
type Sessions interface {
	Get(id string) (models.Session, bool)
	List() []models.Session
}

// ExampleSource supplies sample prompts for the empty chat screen
type ExampleSource interface {
	Examples(ctx context.Context) ([]string, error)
}

// Options configures optional parts of the model
type Options struct {
	ExportDir string
	// Examples may be nil when the backend has no sample prompts
	Examples ExampleSource
}

// Model represents the main application state
type Model struct {
	ctx      context.Context
	chat     Chat
	sessions Sessions
	opts     Options

	viewport viewport.Model
	textarea textarea.Model
	rename   textinput.Model
	spinner  spinner.Model
	convList list.Model
	renderer *glamour.TermRenderer

	snapshot     chat.Snapshot
	// activeID and activeListed record when the sidebar last followed the
	// active session; otherwise the highlight stays where the user put it
	activeID     string
	activeListed bool
	examples     []string
	mode         mode
	target       string
	status       string
	err          error
	ready        bool
	focus        FocusState
	width        int
	height       int
	sidebarWidth int
}

// EventMsg carries a bus event into the program
type EventMsg events.Event

type examplesMsg struct {
	examples []string
	err      error
}

type exportedMsg struct {
	path string
	err  error
}

// Forward delivers bus events to the program. Send is called on its own
// goroutine so a publisher holding controller locks never waits on the UI.
func Forward(bus *events.Bus, p *tea.Program) func() {
	return bus.Subscribe(func(e events.Event) {
		go p.Send(EventMsg(e))
	})
}

// NewModel creates a new UI model
func NewModel(ctx context.Context, c Chat, sessions Sessions, opts Options) Model {
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}

	ta := textarea.New()
	ta.Placeholder = "Ask about products, sales, orders..."
	ta.Prompt = "┃ "
	ta.CharLimit = 2000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	ti := textinput.New()
	ti.Prompt = "Rename: "
	ti.CharLimit = 200

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = LoadingStyle

	convList := list.New(nil, list.NewDefaultDelegate(), 30, 20)
	convList.Title = "Chats"
	convList.SetShowStatusBar(false)
	convList.SetFilteringEnabled(false)
	convList.SetShowHelp(false)

	m := Model{
		ctx:          ctx,
		chat:         c,
		sessions:     sessions,
		opts:         opts,
		viewport:     viewport.New(50, 20),
		textarea:     ta,
		rename:       ti,
		spinner:      sp,
		convList:     convList,
		focus:        FocusChat,
		sidebarWidth: 30,
	}
	m.refresh()
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.fetchExamples())
}

// Update handles UI events and state changes
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		clCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeRename:
			return m.updateRename(msg)
		case modeConfirmDelete:
			return m.updateConfirmDelete(msg)
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			if m.focus == FocusSidebar {
				m.focus = FocusChat
				m.textarea.Focus()
			} else {
				m.focus = FocusSidebar
				m.textarea.Blur()
			}
			return m, nil
		case tea.KeyCtrlN:
			m.chat.StartNewChat()
			m.status = ""
			m.focus = FocusChat
			m.textarea.Focus()
			m.refresh()
			return m, nil
		case tea.KeyCtrlR:
			id := m.targetID()
			session, ok := m.sessions.Get(id)
			if !ok {
				m.status = "Nothing to rename yet"
				m.refresh()
				return m, nil
			}
			m.mode = modeRename
			m.target = id
			m.rename.SetValue(session.Name)
			m.rename.CursorEnd()
			m.textarea.Blur()
			return m, m.rename.Focus()
		case tea.KeyCtrlD:
			m.mode = modeConfirmDelete
			m.target = m.targetID()
			return m, nil
		case tea.KeyCtrlE:
			return m, m.exportSession(m.targetID())
		case tea.KeyEnter:
			if m.focus == FocusSidebar {
				if selected, ok := m.convList.SelectedItem().(models.Session); ok {
					if err := m.chat.LoadChat(selected.ID); err != nil {
						m.err = err
					}
					m.focus = FocusChat
					m.textarea.Focus()
					m.refresh()
				}
				return m, nil
			}
			question := m.textarea.Value()
			if strings.TrimSpace(question) == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.status = ""
			return m, m.send(question)
		}

	case EventMsg:
		m.refresh()
		return m, nil

	case examplesMsg:
		if msg.err != nil {
			slog.Warn("failed to load example prompts", slog.Any("error", msg.err))
		}
		m.examples = msg.examples
		m.refresh()
		return m, nil

	case exportedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.status = "Exported to " + msg.path
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var spCmd tea.Cmd
		m.spinner, spCmd = m.spinner.Update(msg)
		if m.snapshot.Loading {
			m.refresh()
		}
		return m, spCmd
	}

	// Update child components
	if m.focus == FocusChat {
		m.textarea, tiCmd = m.textarea.Update(msg)
	}
	if m.focus == FocusSidebar {
		m.convList, clCmd = m.convList.Update(msg)
	}
	// typed letters belong to the input, not viewport scrolling
	if _, isKey := msg.(tea.KeyMsg); !isKey || m.focus == FocusSidebar {
		m.viewport, vpCmd = m.viewport.Update(msg)
	}

	return m, tea.Batch(tiCmd, vpCmd, clCmd)
}

func (m Model) updateRename(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.endPrompt()
		return m, nil
	case tea.KeyEnter:
		// an empty name cancels; the controller ignores it
		if err := m.chat.RenameChat(m.target, m.rename.Value()); err != nil {
			m.err = err
		}
		m.endPrompt()
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.rename, cmd = m.rename.Update(msg)
	return m, cmd
}

func (m Model) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case msg.String() == "y" || msg.String() == "Y":
		if err := m.chat.DeleteChat(m.target); err != nil {
			m.err = err
		}
		m.endPrompt()
		m.refresh()
	case msg.String() == "n" || msg.String() == "N" || msg.Type == tea.KeyEsc:
		m.endPrompt()
	}
	return m, nil
}

func (m *Model) endPrompt() {
	m.mode = modeNormal
	m.target = ""
	m.rename.Blur()
	m.rename.Reset()
	if m.focus == FocusChat {
		m.textarea.Focus()
	}
}

// targetID is the highlighted sidebar session, or the active one
func (m Model) targetID() string {
	if m.focus == FocusSidebar {
		if selected, ok := m.convList.SelectedItem().(models.Session); ok {
			return selected.ID
		}
	}
	return m.chat.Snapshot().CurrentID
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	chatWidth := width - m.sidebarWidth - 2
	chatHeight := height - 7

	if !m.ready {
		m.viewport = viewport.New(chatWidth, chatHeight)
		m.ready = true
	} else {
		m.viewport.Width = chatWidth
		m.viewport.Height = chatHeight
	}
	m.textarea.SetWidth(chatWidth - 2)
	m.rename.Width = chatWidth - 12
	m.convList.SetSize(m.sidebarWidth-2, chatHeight+4)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(chatWidth-6),
	)
	if err != nil {
		slog.Warn("markdown renderer unavailable", slog.Any("error", err))
		renderer = nil
	}
	m.renderer = renderer
}

// refresh re-reads controller and registry state
func (m *Model) refresh() {
	m.snapshot = m.chat.Snapshot()
	m.updateConversationList()
	m.updateViewport()
}

func (m *Model) updateConversationList() {
	sessions := m.sessions.List()
	items := make([]list.Item, len(sessions))
	for i, s := range sessions {
		items[i] = s
	}
	selected := m.convList.Index()
	m.convList.SetItems(items)

	active := -1
	for i, s := range sessions {
		if s.ID == m.snapshot.CurrentID {
			active = i
			break
		}
	}

	// follow the active session only when it changes or first shows up
	if m.snapshot.CurrentID != m.activeID || (active >= 0 && !m.activeListed) {
		m.activeID = m.snapshot.CurrentID
		m.activeListed = active >= 0
		if active >= 0 {
			m.convList.Select(active)
			return
		}
	}

	if selected >= len(items) {
		selected = len(items) - 1
	}
	if selected >= 0 {
		m.convList.Select(selected)
	}
}

func (m *Model) updateViewport() {
	var content strings.Builder

	if len(m.snapshot.Messages) == 0 {
		content.WriteString("Welcome to ChipChip!\n")
		content.WriteString("Ask a question about your store to begin.\n\n")
		if len(m.examples) > 0 {
			content.WriteString(HelpStyle.Render("Try asking:") + "\n")
			for _, example := range m.examples {
				content.WriteString(ExampleStyle.Render("• "+example) + "\n")
			}
			content.WriteString("\n")
		}
		content.WriteString(HelpStyle.Render("Controls:\n"))
		content.WriteString(HelpStyle.Render("• Tab - Switch between sidebar and chat\n"))
		content.WriteString(HelpStyle.Render("• Ctrl+N - New chat\n"))
		content.WriteString(HelpStyle.Render("• Ctrl+R - Rename chat\n"))
		content.WriteString(HelpStyle.Render("• Ctrl+D - Delete chat\n"))
		content.WriteString(HelpStyle.Render("• Ctrl+E - Export chat to PDF\n"))
		content.WriteString(HelpStyle.Render("• Enter - Send message / Open chat\n"))
		content.WriteString(HelpStyle.Render("• Ctrl+C / Esc - Quit\n\n"))
	} else {
		for _, msg := range m.snapshot.Messages {
			stamp := TimestampStyle.Render("[" + msg.Timestamp + "]")
			if msg.Sender == models.SenderUser {
				content.WriteString(MessageStyle.Render(
					UserStyle.Render("You") + " " + stamp + "\n" + msg.Text + "\n",
				))
			} else {
				content.WriteString(MessageStyle.Render(
					BotStyle.Render("ChipChip") + " " + stamp + "\n" + m.renderMarkdown(msg.Text),
				))
			}
			content.WriteString("\n")
		}
	}

	if m.snapshot.Loading {
		content.WriteString(MessageStyle.Render(
			m.spinner.View() + LoadingStyle.Render(" ChipChip is thinking...") + "\n",
		))
	}

	if m.err != nil {
		content.WriteString(MessageStyle.Render(
			ErrorStyle.Render("Error: " + m.err.Error() + "\n"),
		))
		m.err = nil
	}

	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

func (m *Model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text + "\n"
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return strings.Trim(out, "\n") + "\n"
}

func (m Model) send(question string) tea.Cmd {
	ctx, c := m.ctx, m.chat
	return func() tea.Msg {
		c.Send(ctx, question)
		return nil
	}
}

func (m Model) fetchExamples() tea.Cmd {
	if m.opts.Examples == nil {
		return nil
	}
	ctx, source := m.ctx, m.opts.Examples
	return func() tea.Msg {
		examples, err := source.Examples(ctx)
		return examplesMsg{examples: examples, err: err}
	}
}

func (m Model) exportSession(id string) tea.Cmd {
	session, ok := m.sessions.Get(id)
	if !ok {
		return func() tea.Msg {
			return exportedMsg{err: fmt.Errorf("export: chat has no messages yet")}
		}
	}

	dir := m.opts.ExportDir
	path := filepath.Join(dir, export.FileName(session))
	c := m.chat
	return func() tea.Msg {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return exportedMsg{err: fmt.Errorf("create export dir: %w", err)}
		}
		f, err := os.Create(path)
		if err != nil {
			return exportedMsg{err: fmt.Errorf("create %s: %w", path, err)}
		}
		err = c.ExportChat(id, f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return exportedMsg{err: err}
		}
		slog.Info("exported chat", slog.String("session_id", id), slog.String("path", path))
		return exportedMsg{path: path}
	}
}

// View renders the UI
func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	// Create sidebar
	sidebarContent := m.convList.View()
	var sidebar string
	if m.focus == FocusSidebar {
		sidebar = SidebarFocusedStyle.Width(m.sidebarWidth).Height(m.height - 1).Render(sidebarContent)
	} else {
		sidebar = SidebarStyle.Width(m.sidebarWidth).Height(m.height - 1).Render(sidebarContent)
	}

	// Create chat area
	chatWidth := m.width - m.sidebarWidth - 2
	title := models.DefaultSessionName
	if session, ok := m.sessions.Get(m.snapshot.CurrentID); ok {
		title = session.Name
	}
	chatHeader := TitleStyle.Width(chatWidth).Render("ChipChip · " + title)

	var input string
	switch m.mode {
	case modeRename:
		input = PromptStyle.Render(m.rename.View()) + "\n" + HelpStyle.Render("Enter to save, Esc to cancel")
	case modeConfirmDelete:
		input = ModalStyle.Render(m.confirmText())
	default:
		input = m.textarea.View()
	}

	chatArea := ChatStyle.Width(chatWidth).Render(
		fmt.Sprintf("%s\n%s\n%s\n%s", chatHeader, m.viewport.View(), StatusStyle.Render(m.status), input),
	)

	// Combine sidebar and chat area
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, chatArea)
}

func (m Model) confirmText() string {
	name := models.DefaultSessionName
	if session, ok := m.sessions.Get(m.target); ok {
		name = session.Name
	}
	return fmt.Sprintf("Delete %q? (y/n)", name)
}
