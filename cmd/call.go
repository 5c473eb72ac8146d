package cmd

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/huddle-chat/huddle/internal/config"
	"github.com/huddle-chat/huddle/internal/media"
	"github.com/huddle-chat/huddle/internal/session"
	"github.com/huddle-chat/huddle/internal/signaling"
	"github.com/huddle-chat/huddle/internal/ui"
)

var (
	flagDomain   string
	flagName     string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
)

func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagDomain, "domain", "d", "", "Custom domain")
	cmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name shown to other participants")
	cmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	cmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	cmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	cmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	cmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Domain:      flagDomain,
		DisplayName: flagName,
		STUNServer:  flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		ForceRelay:  flagRelay,
	})
	if err != nil {
		return nil, session.NewError("load config", err)
	}
	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

// runCall owns the full lifetime of one call: connect, coordinate, render,
// leave. create selects whether the room must be minted server-side.
func runCall(cfg *config.Config, roomCode string, create bool) error {
	gate := media.NewGate()
	capture, stopCapture, err := media.NewSilentAudio()
	if err != nil {
		return session.NewError("prepare local media", err)
	}
	gate.Set(capture, stopCapture)

	client := signaling.NewClient(cfg.WebSocketURL)
	sess := session.New(cfg, client, gate)
	wireRemoteAudio(sess)

	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	err = client.Connect(roomCode, signaling.AttachPayload{
		Create: create,
		ID:     sess.SelfID(),
		Name:   cfg.DisplayName,
	})
	stopSpinner()
	if err != nil {
		gate.Clear()
		return session.NewError("connect to server", err)
	}

	if create {
		ui.RenderRoomInfo(roomCode, cfg.GetRoomLink(roomCode))
	} else {
		ui.PrintSuccessf("Joined room %s", roomCode)
	}

	sess.Start()

	model := ui.NewCallModel(sess, roomCode, cfg.GetRoomLink(roomCode))
	program := tea.NewProgram(model)
	if _, err := program.Run(); err != nil {
		sess.Leave()
		return session.NewError("run call view", err)
	}

	if err := sess.Leave(); err != nil {
		ui.PrintWarningf("leave cleanup: %v", err)
	}
	ui.RenderCallSummary(model.Summary())
	return nil
}

// wireRemoteAudio keeps remote tracks drained so jitter buffers do not grow
// without bound. Playback is handed to an external renderer; the session
// only guarantees the media arrives.
func wireRemoteAudio(sess *session.Session) {
	var started sync.Map
	sess.OnRemoteMedia(func(m session.RemoteMedia) {
		for _, track := range []*webrtc.TrackRemote{m.Audio, m.Video} {
			if track == nil {
				continue
			}
			if _, loaded := started.LoadOrStore(track, true); !loaded {
				go drainTrack(track)
			}
		}
	})
}

func drainTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
