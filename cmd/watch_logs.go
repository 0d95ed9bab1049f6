package cmd

import (
	"github.com/spf13/cobra"

	"workerwatch/internal/config"
	"workerwatch/internal/log"
	"workerwatch/internal/watcher/daemon"
)

var (
	logsConfigPath string
	logsFile       string
)

var watchLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Follow the watch daemon log",
	Long:  `Stream the watch daemon log file in real-time (like tail -f), starting with a window of recent lines.`,
	Example: `  # Follow the daemon log
  workerwatch watch logs

  # Follow a custom log file
  workerwatch watch logs --log-file /custom/path/watcher.log`,
	Run: func(_ *cobra.Command, _ []string) {
		wcfg := statePaths(logsConfigPath)
		logFile := wcfg.LogFile
		if logsFile != "" {
			logFile = logsFile
		}

		log.Info("following %s (ctrl+c to stop)", logFile)
		if err := daemon.FollowLogs(logFile); err != nil {
			log.Fatal("Failed to follow logs: ", err)
		}
	},
}

func init() {
	watchCmd.AddCommand(watchLogsCmd)

	watchLogsCmd.Flags().StringVarP(&logsConfigPath, "config", "c", "", "Config file location (default: "+config.DefaultFileName+")")
	watchLogsCmd.Flags().StringVar(&logsFile, "log-file", "", "Custom log file location")
}
