package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"workerwatch/internal/config"
	"workerwatch/internal/log"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved API token",
	Long:  `Remove the API token saved by 'workerwatch login'.`,
	Run: func(_ *cobra.Command, _ []string) {
		if err := config.ClearToken(); err != nil {
			log.Fatal("Logout failed: ", err)
		}
		log.Info("saved credentials removed")

		if os.Getenv(config.EnvAPIToken) != "" {
			log.Warn("%s is still set in the environment", config.EnvAPIToken)
		}
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
