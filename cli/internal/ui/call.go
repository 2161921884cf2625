package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/negotiation"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/signaling"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/utils"
)

const chatHistoryLines = 12

// CallControls are the user actions the call screen can trigger.
type CallControls interface {
	StartCall()
	ToggleAudio()
	ToggleVideo()
	SendChat(text string) error
}

// CallUI runs the interactive call screen.
type CallUI struct {
	program *tea.Program
	model   *callModel
}

type snapshotMsg negotiation.Snapshot

type chatSentMsg struct {
	err error
}

type clockMsg time.Time

type callModel struct {
	controls CallControls
	roomID   string

	snap        negotiation.Snapshot
	connectedAt time.Time
	now         time.Time

	input   textinput.Model
	spinner spinner.Model

	notice   string
	width    int
	quitting bool
}

func newCallModel(controls CallControls, roomID string) *callModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	in := textinput.New()
	in.Placeholder = "Type a message and press enter"
	in.CharLimit = 500
	in.Prompt = IconChat + " "
	in.Focus()

	return &callModel{
		controls: controls,
		roomID:   roomID,
		input:    in,
		spinner:  s,
		now:      time.Now(),
	}
}

// NewCallUI creates the call screen for roomID.
func NewCallUI(controls CallControls, roomID string) *CallUI {
	model := newCallModel(controls, roomID)
	return &CallUI{
		model:   model,
		program: tea.NewProgram(model, tea.WithAltScreen()),
	}
}

// Update pushes a new machine snapshot to the screen. It is safe to call
// from any goroutine.
func (ui *CallUI) Update(snap negotiation.Snapshot) {
	ui.program.Send(snapshotMsg(snap))
}

// Run blocks until the user quits.
func (ui *CallUI) Run() error {
	_, err := ui.program.Run()
	return err
}

// Quit closes the screen from outside, for example when the channel is gone.
func (ui *CallUI) Quit() {
	ui.program.Quit()
}

func tickClock() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

func (m *callModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink, tickClock())
}

func (m *callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+a":
			m.controls.ToggleAudio()
			return m, nil
		case "ctrl+t":
			m.controls.ToggleVideo()
			return m, nil
		case "ctrl+r":
			if m.snap.State == negotiation.StateFailed || m.snap.State == negotiation.StateIdle {
				m.notice = ""
				m.controls.StartCall()
			}
			return m, nil
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || !m.snap.ChatEnabled() {
				return m, nil
			}
			m.input.SetValue("")
			controls := m.controls
			return m, func() tea.Msg {
				return chatSentMsg{err: controls.SendChat(text)}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(20, msg.Width-6)

	case snapshotMsg:
		m.applySnapshot(negotiation.Snapshot(msg))
		return m, nil

	case chatSentMsg:
		if msg.err != nil {
			m.notice = "message not sent: " + msg.err.Error()
		} else {
			m.notice = ""
		}
		return m, nil

	case clockMsg:
		m.now = time.Time(msg)
		if !m.quitting {
			cmds = append(cmds, tickClock())
		}
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *callModel) applySnapshot(snap negotiation.Snapshot) {
	if snap.State == negotiation.StateConnected && m.snap.State != negotiation.StateConnected {
		m.connectedAt = m.now
	}
	if snap.State != negotiation.StateConnected {
		m.connectedAt = time.Time{}
	}
	m.snap = snap

	if snap.ChatEnabled() {
		m.input.Placeholder = "Type a message and press enter"
		m.input.Focus()
	} else {
		m.input.Placeholder = "Chat unavailable while the signaling channel is down"
		m.input.Blur()
	}
}

func (m *callModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s Axi-Vid call  %s %s", IconCall, IconRoom, utils.TruncateString(m.roomID, 40))))
	b.WriteString("\n")

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.channelLine())
	b.WriteString("\n\n")
	b.WriteString(m.mediaLine())
	b.WriteString("\n")

	if err := m.snap.LastError; err != nil {
		b.WriteString("\n")
		b.WriteString(FormatError(err))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.chatView())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(WarningStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(m.keyHints())

	return b.String()
}

func (m *callModel) statusLine() string {
	state := m.snap.State
	var icon string
	switch state {
	case negotiation.StateConnected:
		icon = SuccessStyle.Render("●")
	case negotiation.StateFailed:
		icon = ErrorStyle.Render("●")
	case negotiation.StateIdle, negotiation.StateEnded:
		icon = MutedStyle.Render("○")
	default:
		icon = m.spinner.View()
	}

	line := fmt.Sprintf("%s %s", icon, BoldStyle.Render(stateLabel(state)))
	if !m.connectedAt.IsZero() {
		line += MutedStyle.Render(fmt.Sprintf("  %s %s", IconTime, utils.FormatTimeDuration(m.now.Sub(m.connectedAt))))
	}

	details := []string{fmt.Sprintf("%s %d/2", IconPeer, m.snap.PeerCount)}
	if m.snap.Role != "" {
		details = append(details, m.snap.Role)
	}
	if state == negotiation.StateConnected {
		details = append(details, "link "+m.snap.Connectivity.String())
	}
	return line + "  " + MutedStyle.Render(strings.Join(details, " · "))
}

func stateLabel(state negotiation.State) string {
	switch state {
	case negotiation.StateIdle:
		return "Idle. Press ctrl+r to start the call"
	case negotiation.StateAcquiringMedia:
		return "Starting camera and microphone..."
	case negotiation.StateAwaitingPeer:
		return "Waiting for the other participant..."
	case negotiation.StateOffering:
		return "Calling..."
	case negotiation.StateAnswering:
		return "Answering..."
	case negotiation.StateConnected:
		return "In call"
	case negotiation.StateFailed:
		return "Call failed. Press ctrl+r to retry"
	case negotiation.StateEnded:
		return "Call ended"
	}
	return state.String()
}

func (m *callModel) channelLine() string {
	switch m.snap.Channel {
	case signaling.StateReconnecting:
		return WarningStyle.Render(fmt.Sprintf("%s Reconnecting to signaling server (attempt %d)...", IconReconnect, m.snap.ReconnectAttempt))
	case signaling.StateClosed:
		return ErrorStyle.Render(IconConnect + " Disconnected from signaling server")
	}
	return MutedStyle.Render(IconConnect + " Signaling connected")
}

func mediaFlag(icon string, on bool) string {
	if on {
		return icon + " " + MediaOnStyle.Render("on")
	}
	return icon + " " + MediaOffStyle.Render("off")
}

func (m *callModel) mediaLine() string {
	local := MutedStyle.Render("no local media")
	if m.snap.HasLocalMedia {
		local = mediaFlag(IconMic, m.snap.LocalAudio) + "  " + mediaFlag(IconCamera, m.snap.LocalVideo)
	}
	remote := MutedStyle.Render("not connected")
	if m.snap.State == negotiation.StateConnected {
		remote = mediaFlag(IconMic, m.snap.RemoteAudio) + "  " + mediaFlag(IconCamera, m.snap.RemoteVideo)
		if len(m.snap.RemoteTracks) > 0 {
			remote += MutedStyle.Render("  receiving " + strings.Join(m.snap.RemoteTracks, ", "))
		}
	}
	return fmt.Sprintf("You:  %s\nPeer: %s", local, remote)
}

const chatHeader = "Chat"

func (m *callModel) chatView() string {
	var b strings.Builder
	b.WriteString(BoldStyle.Render(chatHeader))
	b.WriteString("\n")

	chat := m.snap.Chat
	if len(chat) == 0 {
		b.WriteString(MutedStyle.Render("No messages yet"))
		return b.String()
	}
	if len(chat) > chatHistoryLines {
		chat = chat[len(chat)-chatHistoryLines:]
	}
	for i, entry := range chat {
		who := ChatPeerStyle.Render("peer")
		if entry.FromSelf {
			who = ChatSelfStyle.Render("you")
		}
		b.WriteString(fmt.Sprintf("%s %s: %s", ChatTimeStyle.Render(entry.At.Format("15:04")), who, entry.Text))
		if i < len(chat)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *callModel) keyHints() string {
	hints := []string{
		KeyStyle.Render("ctrl+a") + " mic",
		KeyStyle.Render("ctrl+t") + " camera",
		KeyStyle.Render("enter") + " send",
		KeyStyle.Render("esc") + " hang up",
	}
	if m.snap.State == negotiation.StateFailed || m.snap.State == negotiation.StateIdle {
		hints = append(hints, KeyStyle.Render("ctrl+r")+" start")
	}
	return FooterStyle.Render(strings.Join(hints, "  "))
}
