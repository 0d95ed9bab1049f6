package cmd

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Manage the background watch-deploy daemon",
	Long: `Manage the watch daemon that redeploys the worker when project files change.

The daemon runs the same watch-deploy loop as 'workerwatch deploy --yolo',
detached from the terminal. It writes a PID file and a log file under the
project's .workerwatch directory and exposes live state over a unix socket.`,
	Example: `  # Start the daemon
  workerwatch watch start

  # Check daemon state and deploy stats
  workerwatch watch status

  # Follow the daemon log
  workerwatch watch logs

  # Stop the daemon
  workerwatch watch stop`,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
