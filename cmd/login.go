package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"workerwatch/internal/api"
	"workerwatch/internal/config"
	"workerwatch/internal/log"
)

var loginToken string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify and save a Cloudflare API token",
	Long: `Verify a Cloudflare API token against the platform and save it under
the user config directory.

The token needs at least Workers Scripts edit permission. Create one at
https://dash.cloudflare.com/profile/api-tokens. The environment variable
` + config.EnvAPIToken + ` always takes precedence over the saved token.`,
	Example: `  # Prompt for the token
  workerwatch login

  # Non-interactive
  workerwatch login --token $CF_TOKEN`,
	Run: func(_ *cobra.Command, _ []string) {
		if err := runLogin(); err != nil {
			log.Fatal("Login failed: ", err)
		}
	},
}

func runLogin() error {
	token := loginToken
	if token == "" {
		prompt := &survey.Password{Message: "Cloudflare API token:"}
		if err := survey.AskOne(prompt, &token, survey.WithValidator(survey.Required)); err != nil {
			return fmt.Errorf("login canceled: %w", err)
		}
	}

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
	if !status.Active() {
		return fmt.Errorf("token is %s, not active", status.Status)
	}

	if err := config.SaveToken(token); err != nil {
		return err
	}

	path, _ := config.AuthPath()
	log.Info("token verified and saved to %s", path)

	// Show which accounts the token can reach while we are here
	accounts, err := client.Accounts(ctx)
	if err != nil {
		log.Debug("cannot list accounts: %v", err)
		return nil
	}
	for _, acct := range accounts {
		log.InfoH2("account: %s (%s)", acct.Name, acct.ID)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVar(&loginToken, "token", "", "API token (prompts when omitted)")
}
