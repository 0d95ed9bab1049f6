// Package cmd provides command-line interface commands for workerwatch
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"workerwatch/internal/log"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "workerwatch",
	Short: "Watch, deploy and tail Cloudflare Workers",
	Long: `workerwatch - watch-deploy loop for Cloudflare Workers

Deploys a worker through a wrangler-compatible CLI and redeploys it
automatically whenever project files change.

Features:
  • One-shot and watch-mode deploys with debounced change detection
  • Deploy history and statistics in a per-project state database
  • Background watch daemon controlled over a unix socket
  • Live worker log streaming over WebSocket
  • Discord and email notifications for deploy outcomes`,
	Example: `  # Scaffold a project config
  workerwatch init

  # Deploy once
  workerwatch deploy

  # Redeploy on every file change
  workerwatch deploy --yolo

  # Run the watch loop in the background
  workerwatch watch start

  # Stream live worker logs
  workerwatch tail`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		// Enable debug mode if flag is set
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			log.SetDebugMode(true)
			log.Debug("debug mode enabled")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Add debug flag to root command
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
}
