package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/utils"
)

// RoomStatus is the occupancy of one room as shown by the status command.
type RoomStatus struct {
	RoomID    string
	PeerCount int
	Capacity  int
	Available bool
}

func styledTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

func RoomStatusView(status RoomStatus) string {
	availability := SuccessStyle.Render("open")
	if !status.Available {
		availability = ErrorStyle.Render("full")
	}

	rows := [][]string{
		{"Room", utils.TruncateString(status.RoomID, 48)},
		{"Participants", fmt.Sprintf("%d / %d", status.PeerCount, status.Capacity)},
		{"Availability", availability},
	}
	return styledTable([]string{"Field", "Value"}, rows).Render()
}

func RenderRoomStatus(status RoomStatus) {
	fmt.Println(RoomStatusView(status))
}

type RoomInfo struct {
	RoomID   string
	RoomLink string
	JoinHint string
}

func NewRoomInfo(roomID, roomLink string) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
		JoinHint: "axivid call " + roomID,
	}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:    %s\n%s Room Link:  %s\n%s Join with:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
		IconCall, BoldStyle.Render(r.JoinHint),
	)

	return RoomBoxStyle.Render(content)
}

func RenderRoomInfo(roomID, roomLink string) {
	fmt.Println(NewRoomInfo(roomID, roomLink).View())
}

// StatsRows formats server totals as label/value pairs.
func StatsRows(rooms, participants int) [][]string {
	return [][]string{
		{"Active rooms", strconv.Itoa(rooms)},
		{"Connected participants", strconv.Itoa(participants)},
	}
}
