package cmd

import (
	"os"
	"os/signal"

	"github.com/huddle-chat/huddle/internal/ui"
	"github.com/huddle-chat/huddle/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "huddle",
	Short:   "Drop-in voice rooms in your terminal, powered by WebRTC",
	Long:    `Huddle is a command-line client for ad-hoc voice rooms. Create a room, share the four-digit code, and talk directly to everyone in it over WebRTC peer connections. A signaling server only brokers the introductions; media never touches it.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
