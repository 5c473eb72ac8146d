package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/huddle-chat/huddle/internal/roster"
	"github.com/huddle-chat/huddle/internal/session"
	"github.com/huddle-chat/huddle/internal/utils"
)

// RosterRow is one participant line in the roster table.
type RosterRow struct {
	Name     string
	IsSelf   bool
	Muted    bool
	Speaking bool
	HasVideo bool
	Link     string
}

// BuildRosterRows merges the roster with per-peer link states into display
// rows. A remote member with no link state yet shows as connecting.
func BuildRosterRows(selfID string, participants []roster.Participant, links map[string]session.LinkState) []RosterRow {
	rows := make([]RosterRow, 0, len(participants))
	for _, p := range participants {
		row := RosterRow{
			Name:     p.Name,
			IsSelf:   p.ID == selfID,
			Muted:    p.Muted,
			Speaking: p.Speaking,
			HasVideo: p.HasVideo,
		}
		if row.Name == "" {
			row.Name = utils.TruncateString(p.ID, 12)
		}
		if row.IsSelf {
			row.Link = "—"
		} else if state, ok := links[p.ID]; ok {
			row.Link = state.String()
		} else {
			row.Link = "connecting"
		}
		rows = append(rows, row)
	}
	return rows
}

// RosterTableView renders the participant table.
func RosterTableView(rows []RosterRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("Nobody here yet")
	}

	headers := []string{"Participant", "Mic", "Speaking", "Camera", "Link"}
	var data [][]string
	for _, r := range rows {
		name := utils.TruncateString(r.Name, 24)
		if r.IsSelf {
			name = name + " (you)"
		}

		mic := IconMicOn
		if r.Muted {
			mic = IconMicOff
		}
		speaking := ""
		if r.Speaking {
			speaking = IconSpeaking
		}
		camera := ""
		if r.HasVideo {
			camera = IconCamera
		}

		var link string
		switch r.Link {
		case "connected":
			link = fmt.Sprintf("%s connected", IconConnected)
		case "—":
			link = "—"
		default:
			link = fmt.Sprintf("%s %s", IconPending, r.Link)
		}

		data = append(data, []string{name, mic, speaking, camera, link})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(data...).
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

	return tbl.Render()
}

// RoomInfo is the create-command banner with the code to share.
type RoomInfo struct {
	RoomCode string
	RoomLink string
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room Code:  %s\n%s Room Link:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomCode),
		IconWeb, MutedStyle.Render(r.RoomLink),
	)
	return SuccessBoxStyle.Render(content)
}

func RenderRoomInfo(roomCode, roomLink string) {
	fmt.Println((&RoomInfo{RoomCode: roomCode, RoomLink: roomLink}).View())
}
