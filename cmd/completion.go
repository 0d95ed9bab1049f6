package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// completionCmd represents the completion command
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for workerwatch.

To load completions:

Bash:

  $ source <(workerwatch completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ workerwatch completion bash > /etc/bash_completion.d/workerwatch
  # macOS:
  $ workerwatch completion bash > $(brew --prefix)/etc/bash_completion.d/workerwatch

Zsh:

  # If shell completion is not already enabled in your environment,
  # you will need to enable it.  You can execute the following once:

  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ workerwatch completion zsh > "${fpath[1]}/_workerwatch"

  # You will need to start a new shell for this setup to take effect.

Fish:

  $ workerwatch completion fish | source

  # To load completions for each session, execute once:
  $ workerwatch completion fish > ~/.config/fish/completions/workerwatch.fish

PowerShell:

  PS> workerwatch completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> workerwatch completion powershell > workerwatch.ps1
  # and source this file from your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			err = cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			err = cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			err = cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		if err != nil {
			// Error is logged but not fatal for completion generation
			cmd.PrintErrf("Error generating completion: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
