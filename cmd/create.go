package cmd

import (
	"github.com/spf13/cobra"

	"github.com/huddle-chat/huddle/internal/utils"
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a voice room and wait for others",
	Long: `Create a new voice room and print the code to share.

Examples:
  huddle create
  huddle create --name Alice
  huddle create --domain custom.example.com --relay`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runCall(cfg, utils.NewRoomCode(), true)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	addConnectionFlags(createCmd)
}
