package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"workerwatch/internal/config"
	"workerwatch/internal/log"
	"workerwatch/internal/watcher/daemon"
	"workerwatch/internal/watcher/socket"
)

var (
	stopConfigPath string
	stopPidFile    string
	stopSocketPath string
	stopTimeout    time.Duration
)

var watchStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the watch daemon",
	Long: `Stop the running watch daemon.

The daemon is asked to shut down over its control socket first, which
lets an in-flight deploy finish within the shutdown grace period. When
the socket is unreachable the daemon is signaled through its PID file.`,
	Example: `  # Stop the daemon
  workerwatch watch stop

  # Give up on a graceful shutdown sooner
  workerwatch watch stop --timeout 5s`,
	Run: func(_ *cobra.Command, _ []string) {
		wcfg := statePaths(stopConfigPath)
		pidFile := wcfg.PidFile
		if stopPidFile != "" {
			pidFile = stopPidFile
		}
		socketPath := wcfg.SocketPath
		if stopSocketPath != "" {
			socketPath = stopSocketPath
		}

		client := socket.NewClient(socketPath)
		if client.IsRunning() {
			log.Info("stopping watch session...")
			if resp, err := client.Stop(); err == nil && resp.Success {
				if err := client.WaitForExit(stopTimeout); err == nil {
					log.Info("watch session stopped")
					return
				}
				log.Warn("session still up after %s, falling back to signal", stopTimeout)
			}
		}

		if err := daemon.Stop(pidFile, stopTimeout); err != nil {
			log.Fatal("Failed to stop daemon: ", err)
		}
		log.Info("watch daemon stopped")
	},
}

func init() {
	watchCmd.AddCommand(watchStopCmd)

	watchStopCmd.Flags().StringVarP(&stopConfigPath, "config", "c", "", "Config file location (default: "+config.DefaultFileName+")")
	watchStopCmd.Flags().StringVar(&stopPidFile, "pid-file", "", "Custom PID file location")
	watchStopCmd.Flags().StringVar(&stopSocketPath, "socket", "", "Custom control socket location")
	watchStopCmd.Flags().DurationVar(&stopTimeout, "timeout", 35*time.Second, "How long to wait for a graceful shutdown")
}
