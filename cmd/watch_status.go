package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"workerwatch/internal/config"
	"workerwatch/internal/log"
	"workerwatch/internal/store"
	"workerwatch/internal/watcher/daemon"
	"workerwatch/internal/watcher/socket"
)

var (
	statusConfigPath string
	statusPidFile    string
	statusSocketPath string
	statusJSON       bool
)

var watchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show watch daemon status",
	Long: `Display the state of the watch daemon: whether the process is alive,
the live deploy counters queried over the control socket, and the last
recorded deployment from the state database.`,
	Example: `  # Show status
  workerwatch watch status

  # Machine-readable output
  workerwatch watch status --json`,
	Run: func(_ *cobra.Command, _ []string) {
		wcfg := statePaths(statusConfigPath)
		pidFile := wcfg.PidFile
		if statusPidFile != "" {
			pidFile = statusPidFile
		}
		socketPath := wcfg.SocketPath
		if statusSocketPath != "" {
			socketPath = statusSocketPath
		}

		status := daemon.Inspect(pidFile)

		var liveStats map[string]interface{}
		client := socket.NewClient(socketPath)
		if resp, err := client.Stats(); err == nil && resp.Success {
			liveStats = resp.Data
		}

		last := lastRecordedDeploy(wcfg.DatabasePath)

		if statusJSON {
			printStatusJSON(status, liveStats, last)
			return
		}

		switch status.State {
		case daemon.StateRunning:
			log.Info("watch daemon running (pid %d)", status.PID)
		case daemon.StateStopped:
			log.Info("watch daemon not running")
		case daemon.StateDead:
			log.Warn("watch daemon dead: %s", status.Message)
		default:
			log.Error("cannot inspect daemon: %s", status.Message)
		}

		if liveStats != nil {
			log.InfoH2("attempts: %v  successful: %v  failed: %v",
				liveStats["attempts"], liveStats["successful"], liveStats["failed"])
			if inFlight, _ := liveStats["in_flight"].(bool); inFlight {
				log.InfoH2("deploy in flight")
			}
		}

		if last != nil {
			outcome := "ok"
			if !last.OK {
				outcome = "failed"
			}
			log.InfoH2("last deploy: #%d %s, %s ago (%s)",
				last.Seq, outcome, time.Since(last.StartedAt).Round(time.Second), last.Cause)
		}
	},
}

// lastRecordedDeploy reads the most recent attempt from the state
// database. Only opens the database when it already exists, so a status
// probe never creates state directories.
func lastRecordedDeploy(dbPath string) *store.Deployment {
	if _, err := os.Stat(dbPath); err != nil {
		return nil
	}
	st := store.New(dbPath)
	if err := st.Init(); err != nil {
		log.Debug("state store unavailable: %v", err)
		return nil
	}
	defer closeStore(st)

	last, err := st.LastDeployment()
	if err != nil {
		log.Debug("cannot read deploy history: %v", err)
		return nil
	}
	return last
}

func printStatusJSON(status daemon.Status, liveStats map[string]interface{}, last *store.Deployment) {
	payload := map[string]interface{}{
		"daemon": status,
	}
	if liveStats != nil {
		payload["stats"] = liveStats
	}
	if last != nil {
		outcome := map[string]interface{}{
			"seq":         last.Seq,
			"started_at":  last.StartedAt.Format(time.RFC3339),
			"duration_ms": last.Duration.Milliseconds(),
			"ok":          last.OK,
			"cause":       last.Cause,
		}
		if last.VersionID != "" {
			outcome["version_id"] = last.VersionID
		}
		if last.Error != "" {
			outcome["error"] = last.Error
		}
		payload["last_deploy"] = outcome
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Fatal("Failed to encode status: ", err)
	}
	fmt.Println(string(data))
}

func init() {
	watchCmd.AddCommand(watchStatusCmd)

	watchStatusCmd.Flags().StringVarP(&statusConfigPath, "config", "c", "", "Config file location (default: "+config.DefaultFileName+")")
	watchStatusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Custom PID file location")
	watchStatusCmd.Flags().StringVar(&statusSocketPath, "socket", "", "Custom control socket location")
	watchStatusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status in JSON format")
}
