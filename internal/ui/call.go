package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/huddle-chat/huddle/internal/session"
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// CallModel is the Bubble Tea model for an active call. It polls the
// session's read-only views on a tick; all coordination stays inside the
// session loop.
type CallModel struct {
	session  *session.Session
	roomCode string
	roomLink string

	spinner  spinner.Model
	rows     []RosterRow
	muted    bool
	quitting bool

	started       time.Time
	peak          int
	peakConnected int
}

// NewCallModel creates the call view for a joined room.
func NewCallModel(sess *session.Session, roomCode, roomLink string) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallModel{
		session:  sess,
		roomCode: roomCode,
		roomLink: roomLink,
		spinner:  s,
		started:  time.Now(),
		peak:     1,
	}
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "m":
			m.muted = !m.muted
			m.session.SetMuted(m.muted)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		m.refresh()
		if !m.quitting {
			cmds = append(cmds, tickCmd())
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *CallModel) refresh() {
	participants := m.session.Participants()
	links := m.session.LinkStates()
	m.rows = BuildRosterRows(m.session.SelfID(), participants, links)

	if len(participants) > m.peak {
		m.peak = len(participants)
	}
	connected := 0
	for _, state := range links {
		if state == session.LinkConnected {
			connected++
		}
	}
	if connected > m.peakConnected {
		m.peakConnected = connected
	}
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	header := HeaderStyle.Render(fmt.Sprintf("%s Huddle — Room %s", IconRoom, m.roomCode))
	b.WriteString(header + "\n\n")

	if len(m.rows) <= 1 {
		b.WriteString(fmt.Sprintf("%s Waiting for others to join...\n\n", m.spinner.View()))
	}

	b.WriteString(RosterTableView(m.rows))
	b.WriteString("\n")

	micHint := "m mute"
	if m.muted {
		micHint = "m unmute"
	}
	footer := FooterStyle.Render(fmt.Sprintf("%s · q leave", micHint))
	b.WriteString("\n" + footer)

	return ContainerStyle.Render(b.String())
}

// Summary reports the call statistics gathered while the view was running.
func (m *CallModel) Summary() CallSummary {
	return CallSummary{
		RoomCode:         m.roomCode,
		Duration:         time.Since(m.started),
		PeakParticipants: m.peak,
		PeersConnected:   m.peakConnected,
	}
}
