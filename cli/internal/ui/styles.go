package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	Primary    = lipgloss.Color("#22d3ee")
	Secondary  = lipgloss.Color("#7C3AED")
	Success    = lipgloss.Color("#10B981")
	Warning    = lipgloss.Color("#F59E0B")
	Error      = lipgloss.Color("#EF4444")
	Muted      = lipgloss.Color("#6B7280")
	Foreground = lipgloss.Color("#F9FAFB")
	keyBg      = lipgloss.Color("#374151")
	headerBg   = lipgloss.Color("#1F2937")
)

var (
	SuccessStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

	// RoomBoxStyle frames the details of a freshly created room.
	RoomBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(Success).
			Padding(1, 2)
)

// Room status table.
var (
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Primary).
				Align(lipgloss.Center)

	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	TableRowStyle    = tableCellStyle.Foreground(lipgloss.Color("255"))
	TableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
)

// Call screen.
var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			Background(headerBg).
			Padding(0, 2).
			MarginBottom(1)

	FooterStyle = lipgloss.NewStyle().Foreground(Muted).MarginTop(1)

	ChatSelfStyle = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	ChatPeerStyle = lipgloss.NewStyle().Foreground(Secondary).Bold(true)
	ChatTimeStyle = lipgloss.NewStyle().Foreground(Muted)

	MediaOnStyle  = lipgloss.NewStyle().Foreground(Success)
	MediaOffStyle = lipgloss.NewStyle().Foreground(Error)

	KeyStyle = lipgloss.NewStyle().
			Foreground(Foreground).
			Background(keyBg).
			Padding(0, 1)
)

const (
	IconSuccess   = "✅"
	IconError     = "❌"
	IconWarning   = "⚠️"
	IconInfo      = "ℹ️"
	IconRoom      = "🚪"
	IconPeer      = "👤"
	IconConnect   = "🔌"
	IconTime      = "⏱️"
	IconCopy      = "📋"
	IconWeb       = "🌐"
	IconCall      = "📞"
	IconMic       = "🎤"
	IconCamera    = "📷"
	IconChat      = "💬"
	IconReconnect = "🔄"
	IconStats     = "📊"
)

func PrintError(msg string) {
	fmt.Printf("%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintWarning(msg string) {
	fmt.Printf("%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintInfo(msg string) {
	fmt.Printf("%s %s\n", IconInfo, MutedStyle.Render(msg))
}

func FormatError(err error) string {
	return fmt.Sprintf("%s %s", ErrorStyle.Render(IconError), ErrorStyle.Render(err.Error()))
}
