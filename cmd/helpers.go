package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"workerwatch/internal/api"
	"workerwatch/internal/config"
	"workerwatch/internal/deploy"
	"workerwatch/internal/errors"
	"workerwatch/internal/log"
	"workerwatch/internal/notify"
	"workerwatch/internal/store"
	"workerwatch/internal/watcher/core"
	"workerwatch/internal/watcher/reporter"
	"workerwatch/internal/watcher/socket"
	"workerwatch/internal/watcher/types"
)

// accountIDKey is the state-store cache key for the resolved account ID
const accountIDKey = "account_id"

// statePaths resolves the per-project state file locations (PID file, log,
// socket, database) from the config file, falling back to the current
// directory when no config is present. Stop and status must keep working
// against a running daemon even when the config file has since broken.
func statePaths(configPath string) types.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Debug("using default state paths: %v", err)
		return types.DefaultConfig(".")
	}
	return types.DefaultConfig(cfg.Root())
}

// optionalToken loads the API token when one is configured. The deploy CLI
// may carry its own credentials, so a missing token is not fatal here.
func optionalToken() string {
	token, err := config.LoadToken()
	if err != nil {
		if !errors.Is(err, errors.ErrNoToken) {
			log.Warn("cannot load API token: %v", err)
		}
		return ""
	}
	return token
}

// requireToken loads the API token or exits with a pointed message
func requireToken() string {
	token, err := config.LoadToken()
	if err != nil {
		if errors.Is(err, errors.ErrNoToken) {
			log.Fatal("Not logged in. Run 'workerwatch login' or set ", config.EnvAPIToken)
		}
		log.Fatal("Failed to load API token: ", err)
	}
	return token
}

// openStore opens the per-project state database. Persistence is optional,
// so failures degrade to a nil store with a warning.
func openStore(path string) *store.Store {
	st := store.New(path)
	if err := st.Init(); err != nil {
		log.Warn("state store unavailable: %v", err)
		return nil
	}
	return st
}

func closeStore(st *store.Store) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		log.Debug("closing state store: %v", err)
	}
}

// resolveAccountID resolves the account in precedence order: config file,
// environment, state-store cache, then the platform API. API lookups are
// cached in the store so later runs skip the round trip. Returns empty
// when nothing resolves; the deploy CLI may still resolve it on its own.
func resolveAccountID(ctx context.Context, cfg *config.File, st *store.Store, token string) string {
	if cfg.AccountID != "" {
		return cfg.AccountID
	}
	if id := os.Getenv(config.EnvAccountID); id != "" {
		log.Debug("account ID from %s", config.EnvAccountID)
		return id
	}
	if st != nil {
		if id, err := st.Get(accountIDKey); err == nil && id != "" {
			log.Debug("account ID from state cache")
			return id
		}
	}
	if token == "" {
		return ""
	}

	client, err := api.New(token)
	if err != nil {
		log.Debug("account resolution skipped: %v", err)
		return ""
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	id, err := client.ResolveAccountID(lookupCtx)
	if err != nil {
		log.Debug("account resolution failed: %v", err)
		return ""
	}
	if st != nil {
		if err := st.Set(accountIDKey, id); err != nil {
			log.Debug("cannot cache account ID: %v", err)
		}
	}
	return id
}

// buildNotifier assembles the configured notification stack. Broken
// notification config downgrades to a warning so deploys still run.
func buildNotifier(cfg *config.File) (notify.Notifier, notify.Policy) {
	notifier, err := notify.FromConfig(cfg.Notifications)
	if err != nil {
		log.Warn("notifications disabled: %v", err)
		notifier = nil
	}
	return notifier, notify.PolicyFromConfig(cfg.Notifications.NotifyOn)
}

// runSession wires up and runs one watch-deploy loop. Both the interactive
// watch mode and the daemon run through here; only wcfg differs.
func runSession(cfg *config.File, wcfg types.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token := optionalToken()

	st := openStore(wcfg.DatabasePath)
	defer closeStore(st)

	cfg.AccountID = resolveAccountID(ctx, cfg, st, token)

	deployer := deploy.NewCLIDeployer(cfg.DeployCommand, cfg.Root())
	if err := deployer.CheckBinary(); err != nil {
		return err
	}

	// Raw terminal mode leaves the cursor column where \n put it, so
	// everything written while keys are armed goes through a CRLF filter.
	var out io.Writer = os.Stdout
	interactive := !wcfg.DaemonMode && term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		out = reporter.NewCRLFWriter(os.Stdout)
	}
	rep := reporter.New(out, cfg.Root(), wcfg.Verbose)
	if wcfg.Verbose {
		deployer.Stdout = out
		deployer.Stderr = out
	}

	notifier, policy := buildNotifier(cfg)

	sess, err := core.NewSession(core.SessionOptions{
		Config:   cfg,
		Watch:    wcfg,
		Request:  deploy.NewRequest(cfg, token),
		Deployer: deployer,
		Reporter: rep,
		Store:    st,
		Notifier: notifier,
		Policy:   policy,
	})
	if err != nil {
		return err
	}

	if wcfg.SocketEnabled {
		srv := socket.NewServer(wcfg.SocketPath, socket.NewSessionHandler(sess))
		if err := srv.Init(); err != nil {
			log.Warn("control socket unavailable: %v", err)
		} else {
			defer func() { _ = srv.Close() }()
			go srv.Run(ctx)
		}
	}

	return sess.Run(ctx)
}
