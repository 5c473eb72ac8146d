package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/huddle-chat/huddle/internal/utils"
)

var joinCmd = &cobra.Command{
	Use:     "join <room-code|room-link>",
	Aliases: []string{"j"},
	Short:   "Join an existing voice room",
	Long: `Join a voice room by its four-digit code or by the shared link.

Examples:
  huddle join 4821
  huddle join https://huddle-chat.app/r/4821
  huddle join 4821 --name Bob`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomCode, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runCall(cfg, roomCode, false)
	},
}

// parseRoomInput accepts a bare room code or a room link and extracts the
// code. "0042" is valid; codes keep their leading zeros.
func parseRoomInput(input string) (string, error) {
	if utils.ValidRoomCode(input) {
		return input, nil
	}

	if u, err := url.Parse(input); err == nil && u.Path != "" {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		code := parts[len(parts)-1]
		if utils.ValidRoomCode(code) {
			return code, nil
		}
	}

	return "", fmt.Errorf("not a room code or room link: %q", input)
}

func init() {
	rootCmd.AddCommand(joinCmd)
	addConnectionFlags(joinCmd)
}
