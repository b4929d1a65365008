package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "qoapwm",
	Short: "Play QOA audio through an emulated PWM pin.",
	Long: "A CLI tool that streams mono QOA assets sample by sample into a PWM duty cycle,\n" +
		"the way a microcontroller without a DAC plays sound, and prepares assets for it.",
	Run: func(cmd *cobra.Command, args []string) {
		// Display help when no subcommand is provided
		fmt.Fprintln(cmd.OutOrStdout(), "Usage: qoapwm [command]")
		fmt.Fprintln(cmd.OutOrStdout(), "Use 'qoapwm help' for a list of commands.")
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

var quiet bool
var verbose bool
var configPath string

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress command output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Increase command output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Track table and playback settings (YAML)")
}

// Execute runs the command tree and exits the process if a command fails.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal(err)
	}
}
