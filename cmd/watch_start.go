package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"workerwatch/internal/config"
	"workerwatch/internal/log"
	"workerwatch/internal/watcher/daemon"
	"workerwatch/internal/watcher/socket"
	"workerwatch/internal/watcher/types"
)

var (
	watchForeground bool
	watchConfigPath string
	watchPidFile    string
	watchLogFile    string
	watchSocketPath string
	watchNoSocket   bool
	watchDebounce   time.Duration
	watchIgnore     []string
)

var watchStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the watch daemon",
	Long: `Start the watch-deploy loop as a background daemon.

The daemon deploys once at startup, then redeploys whenever project files
change. Its output goes to the log file and its state is queryable with
'workerwatch watch status'. Use --foreground to run attached to the
current terminal instead.`,
	Example: `  # Start as daemon
  workerwatch watch start

  # Run attached to the terminal
  workerwatch watch start --foreground

  # Start with a longer quiet window
  workerwatch watch start --debounce 2s

  # Start with extra ignore patterns
  workerwatch watch start --ignore "*.tmp" --ignore "build/**"`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := runWatchStart(cmd); err != nil {
			log.Fatal("Failed to start watcher: ", err)
		}
	},
}

func runWatchStart(cmd *cobra.Command) error {
	cfg, err := config.Load(watchConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	wcfg := types.DefaultConfig(cfg.Root())
	wcfg.DaemonMode = !watchForeground
	wcfg.Debounce = cfg.Watch.Debounce.Std()
	if cmd.Flags().Changed("debounce") {
		wcfg.Debounce = watchDebounce
	}
	wcfg.IgnorePatterns = append(cfg.Watch.Ignore, watchIgnore...)
	if watchPidFile != "" {
		wcfg.PidFile = watchPidFile
	}
	if watchLogFile != "" {
		wcfg.LogFile = watchLogFile
	}
	if watchSocketPath != "" {
		wcfg.SocketPath = watchSocketPath
	}
	if watchNoSocket {
		wcfg.SocketEnabled = false
	}

	if !wcfg.DaemonMode {
		log.Info("starting watcher in foreground")
		return runSession(cfg, wcfg)
	}

	if pid, err := daemon.ReadPIDFromFile(wcfg.PidFile); err == nil && daemon.ProcessAlive(pid) {
		return fmt.Errorf("watch daemon already running (pid %d)", pid)
	}

	child, isChild, err := daemon.Daemonize(wcfg.PidFile, wcfg.LogFile)
	if err != nil {
		return err
	}
	if !isChild {
		log.Info("watch daemon started (pid %d)", child.Pid)
		if wcfg.SocketEnabled {
			// A child that dies on startup leaves nothing but the log, so
			// tell the user instead of reporting a healthy daemon.
			if err := socket.NewClient(wcfg.SocketPath).WaitForReady(5 * time.Second); err != nil {
				log.Warn("daemon is not answering yet; check 'workerwatch watch logs'")
			}
		}
		log.InfoH2("logs:   workerwatch watch logs")
		log.InfoH2("status: workerwatch watch status")
		log.InfoH2("stop:   workerwatch watch stop")
		return nil
	}

	// Daemon child: stdout and stderr now point at the log file
	defer func() { _ = os.Remove(wcfg.PidFile) }()
	return runSession(cfg, wcfg)
}

func init() {
	watchCmd.AddCommand(watchStartCmd)

	watchStartCmd.Flags().BoolVarP(&watchForeground, "foreground", "f", false, "Run in foreground instead of daemon mode")
	watchStartCmd.Flags().StringVarP(&watchConfigPath, "config", "c", "", "Config file location (default: "+config.DefaultFileName+")")
	watchStartCmd.Flags().StringVar(&watchPidFile, "pid-file", "", "Custom PID file location")
	watchStartCmd.Flags().StringVar(&watchLogFile, "log-file", "", "Custom log file location")
	watchStartCmd.Flags().StringVar(&watchSocketPath, "socket", "", "Custom control socket location")
	watchStartCmd.Flags().BoolVar(&watchNoSocket, "no-socket", false, "Disable the control socket")
	watchStartCmd.Flags().DurationVar(&watchDebounce, "debounce", config.DefaultDebounce, "Quiet window before a change triggers a redeploy")
	watchStartCmd.Flags().StringSliceVar(&watchIgnore, "ignore", []string{}, "Additional patterns to ignore")
}
