package ui

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// CallSummary is the end-of-call report printed after leaving a room.
type CallSummary struct {
	RoomCode         string
	Duration         time.Duration
	PeakParticipants int
	PeersConnected   int
}

// RenderCallSummary prints the summary as a table.
func RenderCallSummary(summary CallSummary) {
	t := table.NewWriter()
	t.SetTitle("%s Call Summary", IconTime)
	t.AppendRows([]table.Row{
		{"Room", summary.RoomCode},
		{"Duration", formatCallDuration(summary.Duration)},
		{"Peak participants", summary.PeakParticipants},
		{"Peers connected", summary.PeersConnected},
	})
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	fmt.Println(t.Render())
}

func formatCallDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
