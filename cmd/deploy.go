package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"workerwatch/internal/config"
	"workerwatch/internal/deploy"
	"workerwatch/internal/errors"
	"workerwatch/internal/log"
	"workerwatch/internal/watcher/core"
	"workerwatch/internal/watcher/reporter"
	"workerwatch/internal/watcher/types"
)

var (
	deployYolo        bool
	deployVerbose     bool
	deployConfigPath  string
	deployName        string
	deployEnv         string
	deployDryRun      bool
	deployMinify      bool
	deployNoBundle    bool
	deployCompatDate  string
	deployCompatFlags []string
	deployDebounce    time.Duration
)

var deployCmd = &cobra.Command{
	Use:     "deploy",
	Aliases: []string{"d"},
	Short:   "Deploy the worker once, or continuously with --yolo",
	Long: `Deploy the worker through the configured wrangler-compatible CLI.

Without flags this runs a single deploy and exits non-zero on failure.
With --yolo the command keeps running: it deploys once, then watches the
project files and redeploys on every change. While watching, single-key
commands are available (r redeploy, s stats, c clear, q quit).`,
	Example: `  # Deploy once
  workerwatch deploy

  # Redeploy on every file change
  workerwatch deploy --yolo

  # Watch with full deploy CLI output
  workerwatch deploy --yolo --verbose

  # Deploy the staging environment under a different name
  workerwatch deploy --env staging --name my-worker-staging

  # Validate the build without uploading
  workerwatch deploy --dry-run`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := runDeploy(cmd); err != nil {
			if errors.Is(err, errors.ErrDeployFailed) {
				// The reporter already printed the failure line
				os.Exit(1)
			}
			log.Fatal("Deploy failed: ", err)
		}
	},
}

func runDeploy(cmd *cobra.Command) error {
	cfg, err := config.Load(deployConfigPath)
	if err != nil {
		return err
	}
	applyDeployOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if deployYolo {
		wcfg := types.DefaultConfig(cfg.Root())
		wcfg.Verbose = deployVerbose
		wcfg.Debounce = cfg.Watch.Debounce.Std()
		if cmd.Flags().Changed("debounce") {
			wcfg.Debounce = deployDebounce
		}
		wcfg.IgnorePatterns = cfg.Watch.Ignore
		return runSession(cfg, wcfg)
	}

	return runOnce(cfg)
}

// applyDeployOverrides lands command-line flags on top of the file values.
// Boolean flags only override when explicitly set, so "minify: true" in
// the file survives a plain "workerwatch deploy".
func applyDeployOverrides(cmd *cobra.Command, cfg *config.File) {
	if deployName != "" {
		cfg.Name = deployName
	}
	if deployEnv != "" {
		cfg.Env = deployEnv
	}
	if deployCompatDate != "" {
		cfg.CompatibilityDate = deployCompatDate
	}
	if len(deployCompatFlags) > 0 {
		cfg.CompatibilityFlags = append(cfg.CompatibilityFlags, deployCompatFlags...)
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = deployDryRun
	}
	if cmd.Flags().Changed("minify") {
		cfg.Minify = deployMinify
	}
	if cmd.Flags().Changed("no-bundle") {
		cfg.NoBundle = deployNoBundle
	}
}

func runOnce(cfg *config.File) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token := optionalToken()

	wcfg := types.DefaultConfig(cfg.Root())
	st := openStore(wcfg.DatabasePath)
	defer closeStore(st)

	cfg.AccountID = resolveAccountID(ctx, cfg, st, token)

	deployer := deploy.NewCLIDeployer(cfg.DeployCommand, cfg.Root())
	if err := deployer.CheckBinary(); err != nil {
		return err
	}
	if deployVerbose {
		deployer.Stdout = os.Stdout
		deployer.Stderr = os.Stderr
	}

	rep := reporter.New(os.Stdout, cfg.Root(), deployVerbose)
	notifier, policy := buildNotifier(cfg)

	deployCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := core.NewScheduler(core.SchedulerOptions{
		Deployer:  deployer,
		Request:   deploy.NewRequest(cfg, token),
		Reporter:  rep,
		Store:     st,
		Notifier:  notifier,
		Policy:    policy,
		DeployCtx: deployCtx,
	})
	defer sched.Close()

	outcome := sched.InitialDeploy("manual")
	if outcome == nil || !outcome.OK() {
		return errors.ErrDeployFailed
	}
	return nil
}

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().BoolVar(&deployYolo, "yolo", false, "Keep watching and redeploy on every file change")
	deployCmd.Flags().BoolVarP(&deployVerbose, "verbose", "v", false, "Stream the deploy CLI's own output")
	deployCmd.Flags().StringVarP(&deployConfigPath, "config", "c", "", "Config file location (default: "+config.DefaultFileName+")")
	deployCmd.Flags().StringVar(&deployName, "name", "", "Override the worker name")
	deployCmd.Flags().StringVarP(&deployEnv, "env", "e", "", "Deploy a specific environment")
	deployCmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "Build without uploading")
	deployCmd.Flags().BoolVar(&deployMinify, "minify", false, "Minify the bundle")
	deployCmd.Flags().BoolVar(&deployNoBundle, "no-bundle", false, "Skip bundling, upload sources as-is")
	deployCmd.Flags().StringVar(&deployCompatDate, "compatibility-date", "", "Override the compatibility date")
	deployCmd.Flags().StringSliceVar(&deployCompatFlags, "compatibility-flag", []string{}, "Additional compatibility flags (can be repeated)")
	deployCmd.Flags().DurationVar(&deployDebounce, "debounce", config.DefaultDebounce, "Quiet window before a change triggers a redeploy (with --yolo)")
}
