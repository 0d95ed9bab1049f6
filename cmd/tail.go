package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"workerwatch/internal/api"
	"workerwatch/internal/config"
	"workerwatch/internal/log"
	"workerwatch/internal/tail"
	"workerwatch/internal/watcher/types"
)

var (
	tailFormat     string
	tailConfigPath string
	tailEnv        string
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream live logs from the deployed worker",
	Long: `Stream live logs from the deployed worker.

A tail session is created through the platform API and streamed over
WebSocket until interrupted. Request events, console output and uncaught
exceptions are rendered as condensed lines; use --format json for the
raw event stream.`,
	Example: `  # Pretty-printed events
  workerwatch tail

  # Raw JSON, one event per line
  workerwatch tail --format json

  # Tail the staging environment
  workerwatch tail --env staging`,
	Run: func(_ *cobra.Command, _ []string) {
		if err := runTailCmd(); err != nil {
			log.Fatal("Tail failed: ", err)
		}
	},
}

func runTailCmd() error {
	format, err := tail.ParseFormat(tailFormat)
	if err != nil {
		return err
	}

	cfg, err := config.Load(tailConfigPath)
	if err != nil {
		return err
	}
	if cfg.Name == "" {
		return fmt.Errorf("config is missing a worker name")
	}

	token := requireToken()
	client, err := api.New(token)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStore(types.DefaultConfig(cfg.Root()).DatabasePath)
	defer closeStore(st)

	accountID := resolveAccountID(ctx, cfg, st, token)
	if accountID == "" {
		return fmt.Errorf("cannot resolve an account ID; set account_id in %s or %s", config.DefaultFileName, config.EnvAccountID)
	}

	// Environment deploys publish under "<name>-<env>"
	script := cfg.Name
	env := cfg.Env
	if tailEnv != "" {
		env = tailEnv
	}
	if env != "" {
		script = cfg.Name + "-" + env
	}

	session, err := client.CreateTail(ctx, accountID, script)
	if err != nil {
		return err
	}
	defer func() {
		// The session would expire on its own, but clean up anyway
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.DeleteTail(cleanupCtx, accountID, script, session.ID); err != nil {
			log.Debug("tail cleanup failed: %v", err)
		}
	}()

	log.Info("tailing %s (ctrl+c to stop)", script)
	return tail.Stream(ctx, tail.Options{URL: session.URL, Format: format})
}

func init() {
	rootCmd.AddCommand(tailCmd)

	tailCmd.Flags().StringVar(&tailFormat, "format", "pretty", "Output format: pretty or json")
	tailCmd.Flags().StringVarP(&tailConfigPath, "config", "c", "", "Config file location (default: "+config.DefaultFileName+")")
	tailCmd.Flags().StringVarP(&tailEnv, "env", "e", "", "Tail a specific environment")
}
