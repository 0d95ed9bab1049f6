package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"workerwatch/internal/api"
	"workerwatch/internal/log"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated identity",
	Long: `Show what the configured API token can see: the token status, the
accounts it has access to and their workers.dev subdomains.`,
	Run: func(_ *cobra.Command, _ []string) {
		if err := runWhoami(); err != nil {
			log.Fatal("Whoami failed: ", err)
		}
	},
}

func runWhoami() error {
	token := requireToken()

	client, err := api.New(token)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, err := client.VerifyToken(ctx)
	if err != nil {
		return err
	}
	log.Info("token %s (%s)", status.Status, status.ID)
	if status.ExpiresOn != "" {
		log.InfoH2("expires: %s", status.ExpiresOn)
	}

	accounts, err := client.Accounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		log.Warn("token has no account access")
		return nil
	}

	for _, acct := range accounts {
		log.Info("account: %s (%s)", acct.Name, acct.ID)
		sub, err := client.Subdomain(ctx, acct.ID)
		if err != nil {
			log.Debug("no subdomain for %s: %v", acct.ID, err)
			continue
		}
		log.InfoH2("workers.dev subdomain: %s.workers.dev", sub)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
