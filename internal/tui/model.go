// Package tui renders the chat client: an auth form, then a channel
// sidebar, message viewport, and member list driven by conversation state
// changes and live connection status.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kenshaw/emoji"

	"github.com/debianrose/dumbchat/internal/conversation"
	"github.com/debianrose/dumbchat/internal/gateway"
	"github.com/debianrose/dumbchat/internal/live"
	"github.com/debianrose/dumbchat/internal/session"
)

type view int

const (
	viewAuth view = iota
	viewChat
)

type authMode int

const (
	modeLogin authMode = iota
	modeRegister
)

// Messages delivered into the bubbletea loop.
type (
	stateChangedMsg struct{}
	liveStatusMsg   struct{ status live.Status }
	authResultMsg   struct{ err error }
	registerDoneMsg struct{ err error }
	opResultMsg     struct{ err error }
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	sidebarStyle = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderRight(true).PaddingRight(1)
	activeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	fromStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusUp     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	statusDown   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Model is the bubbletea model for the chat client.
type Model struct {
	ctrl    *session.Controller
	conv    *conversation.State
	updates chan tea.Msg

	view      view
	mode      authMode
	connected bool
	notice    string

	focused       int
	usernameInput textinput.Model
	passwordInput textinput.Model
	codeInput     textinput.Model
	messageInput  textinput.Model

	chatViewport viewport.Model
	width        int
	height       int
	ready        bool
}

// New builds the TUI model and registers its update channel with the
// conversation state and the session controller, so their change and status
// signals arrive as tea.Msgs once the program runs.
func New(ctrl *session.Controller, conv *conversation.State) *Model {
	username := textinput.New()
	username.Placeholder = "Username"
	username.CharLimit = 32
	username.Focus()

	password := textinput.New()
	password.Placeholder = "Password"
	password.EchoMode = textinput.EchoPassword
	password.CharLimit = 64

	code := textinput.New()
	code.Placeholder = "2FA code"
	code.CharLimit = 6

	message := textinput.New()
	message.Placeholder = "Type a message, or /join <channel>, /create <channel>"
	message.CharLimit = 1000

	m := &Model{
		ctrl:          ctrl,
		conv:          conv,
		updates:       make(chan tea.Msg, 16),
		usernameInput: username,
		passwordInput: password,
		codeInput:     code,
		messageInput:  message,
		chatViewport:  viewport.New(80, 20),
	}

	conv.SetOnChange(func() {
		// Coalesce: a dropped signal is fine, the next render reads
		// the whole state anyway.
		select {
		case m.updates <- stateChangedMsg{}:
		default:
		}
	})
	ctrl.SetStatusListener(func(s live.Status) {
		select {
		case m.updates <- liveStatusMsg{status: s}:
		default:
		}
	})
	return m
}

func (m *Model) listenUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listenUpdates())
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chatViewport.Width = m.chatWidth()
		m.chatViewport.Height = maxInt(3, m.height-5)
		m.ready = true
		m.refreshViewport()
		return m, nil

	case stateChangedMsg:
		m.refreshViewport()
		return m, m.listenUpdates()

	case liveStatusMsg:
		m.connected = msg.status == live.StatusConnected
		if !m.connected {
			m.notice = "live connection lost"
		}
		return m, m.listenUpdates()

	case authResultMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
			if m.ctrl.State() == session.AwaitingSecondFactor {
				m.focusAuthField(2)
			}
			return m, nil
		}
		if m.ctrl.State() == session.AwaitingSecondFactor {
			m.notice = "enter your 2FA code"
			m.focusAuthField(2)
			return m, nil
		}
		m.notice = ""
		m.view = viewChat
		m.messageInput.Focus()
		m.refreshViewport()
		return m, nil

	case registerDoneMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		} else {
			m.notice = "registration successful, please log in"
			m.mode = modeLogin
		}
		return m, nil

	case opResultMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.ctrl.Logout()
			return m, tea.Quit
		}
		if m.view == viewAuth {
			return m.updateAuth(msg)
		}
		return m.updateChat(msg)
	}

	return m, nil
}

func (m *Model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab", "down", "up":
		delta := 1
		if msg.String() == "shift+tab" || msg.String() == "up" {
			delta = len(m.authFields()) - 1
		}
		m.focusAuthField((m.focused + delta) % len(m.authFields()))
		return m, nil

	case "ctrl+r":
		if m.mode == modeLogin {
			m.mode = modeRegister
		} else {
			m.mode = modeLogin
		}
		m.notice = ""
		return m, nil

	case "enter":
		return m, m.submitAuth()
	}

	var cmd tea.Cmd
	fields := m.authFields()
	*fields[m.focused], cmd = fields[m.focused].Update(msg)
	return m, cmd
}

func (m *Model) authFields() []*textinput.Model {
	if m.ctrl.State() == session.AwaitingSecondFactor {
		return []*textinput.Model{&m.usernameInput, &m.passwordInput, &m.codeInput}
	}
	return []*textinput.Model{&m.usernameInput, &m.passwordInput}
}

func (m *Model) focusAuthField(i int) {
	fields := m.authFields()
	if i >= len(fields) {
		i = 0
	}
	m.focused = i
	for j, f := range fields {
		if j == i {
			f.Focus()
		} else {
			f.Blur()
		}
	}
}

func (m *Model) submitAuth() tea.Cmd {
	username := strings.TrimSpace(m.usernameInput.Value())
	password := m.passwordInput.Value()

	if m.ctrl.State() == session.AwaitingSecondFactor {
		code := strings.TrimSpace(m.codeInput.Value())
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return authResultMsg{err: m.ctrl.SubmitSecondFactor(ctx, code)}
		}
	}

	if m.mode == modeRegister {
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return registerDoneMsg{err: m.ctrl.Register(ctx, username, password)}
		}
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		return authResultMsg{err: m.ctrl.Login(ctx, username, password)}
	}
}

func (m *Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		text := strings.TrimSpace(m.messageInput.Value())
		if text == "" {
			return m, nil
		}
		m.messageInput.SetValue("")
		return m, m.runIntent(text)

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.chatViewport, cmd = m.chatViewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.messageInput, cmd = m.messageInput.Update(msg)
	return m, cmd
}

// runIntent turns an input line into a session operation. Slash commands
// mirror the original client's sidebar actions.
func (m *Model) runIntent(text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		switch {
		case strings.HasPrefix(text, "/join "):
			return opResultMsg{err: m.ctrl.JoinChannel(ctx, strings.TrimSpace(strings.TrimPrefix(text, "/join ")))}
		case strings.HasPrefix(text, "/create "):
			return opResultMsg{err: m.ctrl.CreateChannel(ctx, strings.TrimSpace(strings.TrimPrefix(text, "/create ")))}
		case text == "/logout":
			m.ctrl.Logout()
			return tea.Quit()
		default:
			return opResultMsg{err: m.ctrl.SendMessage(ctx, text)}
		}
	}
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	var b strings.Builder
	msgs := m.conv.Messages()
	// State is newest first; the viewport reads top-down oldest first.
	for i := len(msgs) - 1; i >= 0; i-- {
		b.WriteString(renderMessage(msgs[i]))
		b.WriteByte('\n')
	}
	m.chatViewport.SetContent(b.String())
	m.chatViewport.GotoBottom()
}

func renderMessage(msg gateway.Message) string {
	ts := time.UnixMilli(msg.TS).Format("15:04")
	text := emoji.ReplaceAliases(msg.Text)
	line := fmt.Sprintf("%s %s %s", timeStyle.Render(ts), fromStyle.Render(msg.From+":"), text)
	if msg.File != nil {
		line += " " + timeStyle.Render("[file: "+msg.File.OriginalName+"]")
	}
	if msg.Voice != nil {
		line += " " + timeStyle.Render("[voice message]")
	}
	return line
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.view == viewAuth {
		return m.viewAuth()
	}
	return m.viewChat()
}

func (m *Model) viewAuth() string {
	title := "Login"
	if m.mode == modeRegister {
		title = "Register"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(title) + "\n\n")
	b.WriteString(m.usernameInput.View() + "\n")
	b.WriteString(m.passwordInput.View() + "\n")
	if m.ctrl.State() == session.AwaitingSecondFactor {
		b.WriteString(m.codeInput.View() + "\n")
	}
	b.WriteString("\nenter: submit · ctrl+r: switch login/register · ctrl+c: quit\n")
	if m.notice != "" {
		b.WriteString("\n" + noticeStyle.Render(m.notice) + "\n")
	}
	return b.String()
}

func (m *Model) viewChat() string {
	header := headerStyle.Render("#"+m.conv.ActiveChannel()) + "  " + m.connectionBadge()

	sidebar := m.renderChannels()
	members := m.renderMembers()
	chat := m.chatViewport.View()

	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebarStyle.Render(sidebar), chat, sidebarStyle.Render(members))

	notice := ""
	if m.notice != "" {
		notice = noticeStyle.Render(m.notice)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.messageInput.View(), notice)
}

func (m *Model) connectionBadge() string {
	if m.connected {
		return statusUp.Render("● connected")
	}
	return statusDown.Render("● disconnected")
}

func (m *Model) renderChannels() string {
	var b strings.Builder
	b.WriteString("Channels\n")
	active := m.conv.ActiveChannel()
	for _, ch := range m.conv.Channels() {
		name := "#" + ch.Name
		line := fmt.Sprintf("%s (%d)", name, ch.MemberCount)
		if ch.Name == active {
			line = activeStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m *Model) renderMembers() string {
	var b strings.Builder
	b.WriteString("Members\n")
	for _, member := range m.conv.Members() {
		b.WriteString(member.Username + "\n")
	}
	return b.String()
}

func (m *Model) chatWidth() int {
	return maxInt(20, m.width-44)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
