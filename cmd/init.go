package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"workerwatch/internal/config"
	"workerwatch/internal/log"
	"workerwatch/internal/scaffold"
)

var (
	initName    string
	initMain    string
	initCommand string
	initForce   bool
)

var initCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"i"},
	Short:   "Initialize a workerwatch project",
	Long: `Initialize a workerwatch project in the current directory.

This command creates:
  - workerwatch.yaml with the worker name, entry point and deploy command
  - A starter entry module when the entry point does not exist yet
  - A .gitignore covering build output and the local state directory

You can provide values via flags or be prompted for input interactively.`,
	Example: `  # Initialize with prompts
  workerwatch init

  # Initialize without prompts
  workerwatch init --name my-worker --main src/index.js

  # Recreate the config over an existing one
  workerwatch init --force`,
	Run: func(_ *cobra.Command, _ []string) {
		if err := runInit(); err != nil {
			log.Fatal("Init failed: ", err)
		}
	},
}

func runInit() error {
	path := config.DefaultFileName
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	name, main, command, err := askProjectDetails()
	if err != nil {
		return err
	}

	cfg := &config.File{
		Name:          name,
		Main:          main,
		DeployCommand: command,
		Watch: config.Watch{
			Debounce: config.Duration(config.DefaultDebounce),
			Ignore:   []string{"*.log", "node_modules/**"},
		},
	}
	if err := config.Write(path, cfg); err != nil {
		return err
	}
	log.Info("wrote %s", path)

	if _, err := os.Stat(main); os.IsNotExist(err) {
		if confirmStarter(main) {
			if err := scaffold.Entry(main, scaffold.Info{Name: name}); err != nil {
				return err
			}
			log.InfoH2("created %s", main)
		} else {
			log.Warn("entry point %s does not exist yet", main)
		}
	}

	if err := scaffold.Gitignore("."); err != nil {
		log.Debug("skipping .gitignore: %v", err)
	}

	log.Info("project initialized")
	log.InfoH2("next: workerwatch login, then workerwatch deploy --yolo")
	return nil
}

// askProjectDetails fills in whatever the flags left blank, prompting
// interactively for the rest
func askProjectDetails() (name, main, command string, err error) {
	name, main, command = initName, initMain, initCommand

	var questions []*survey.Question
	if name == "" {
		cwd, _ := os.Getwd()
		questions = append(questions, &survey.Question{
			Name: "name",
			Prompt: &survey.Input{
				Message: "Worker name:",
				Default: filepath.Base(cwd),
			},
			Validate: survey.Required,
		})
	}
	if main == "" {
		questions = append(questions, &survey.Question{
			Name: "main",
			Prompt: &survey.Input{
				Message: "Entry point:",
				Default: "src/index.js",
			},
			Validate: survey.Required,
		})
	}
	// Only ask about the deploy command when we are prompting anyway, so
	// "init --name x --main y" stays non-interactive
	if command == "" && len(questions) > 0 {
		questions = append(questions, &survey.Question{
			Name: "command",
			Prompt: &survey.Input{
				Message: "Deploy command:",
				Default: config.DefaultDeployCommand,
			},
		})
	}

	if len(questions) > 0 {
		answers := struct {
			Name    string
			Main    string
			Command string
		}{}
		if err := survey.Ask(questions, &answers); err != nil {
			return "", "", "", fmt.Errorf("init canceled: %w", err)
		}
		if answers.Name != "" {
			name = answers.Name
		}
		if answers.Main != "" {
			main = answers.Main
		}
		if answers.Command != "" {
			command = answers.Command
		}
	}

	if command == "" {
		command = config.DefaultDeployCommand
	}
	return name, main, command, nil
}

// confirmStarter asks whether to scaffold the missing entry module. On a
// non-interactive run the prompt fails and we skip the starter.
func confirmStarter(main string) bool {
	create := true
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Create a starter entry at %s?", main),
		Default: true,
	}
	if err := survey.AskOne(prompt, &create); err != nil {
		log.Debug("starter prompt unavailable: %v", err)
		return false
	}
	return create
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initName, "name", "", "Worker name")
	initCmd.Flags().StringVar(&initMain, "main", "", "Entry point path")
	initCmd.Flags().StringVar(&initCommand, "deploy-command", "", "Deploy command (default: "+config.DefaultDeployCommand+")")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config")
}
