package deploy

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"workerwatch/internal/config"
	"workerwatch/internal/errors"
	"workerwatch/internal/log"
)

// CLIDeployer shells out to a wrangler-compatible binary
type CLIDeployer struct {
	// Command is the base command line, e.g. "wrangler" or "npx wrangler"
	Command string
	// Dir is the working directory for the subprocess
	Dir string
	// Stdout and Stderr, when set, receive the subprocess output live in
	// addition to the capture buffers (verbose mode)
	Stdout io.Writer
	Stderr io.Writer
}

// NewCLIDeployer creates a deployer for the given base command and directory
func NewCLIDeployer(command, dir string) *CLIDeployer {
	if command == "" {
		command = config.DefaultDeployCommand
	}
	return &CLIDeployer{Command: command, Dir: dir}
}

// CheckBinary verifies the base command resolves on PATH. Called once at
// startup so a missing binary is fatal before the loop starts, not on the
// first attempt.
func (d *CLIDeployer) CheckBinary() error {
	words, err := shellquote.Split(d.Command)
	if err != nil || len(words) == 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "deploy_command %q", d.Command)
	}
	if _, err := exec.LookPath(words[0]); err != nil {
		return errors.Wrapf(errors.ErrDeployBinary, "%s", words[0])
	}
	return nil
}

// Deploy runs one deployment and parses the CLI output
func (d *CLIDeployer) Deploy(ctx context.Context, req *Request) (*Result, error) {
	words, err := shellquote.Split(d.Command)
	if err != nil || len(words) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "deploy_command %q", d.Command)
	}

	args := append(words[1:], buildArgs(req)...)
	log.Debug("running %s %s", words[0], strings.Join(args, " "))

	//nolint:gosec // G204: the command comes from the user's own config
	cmd := exec.CommandContext(ctx, words[0], args...)
	cmd.Dir = d.Dir
	cmd.Env = commandEnv(req)
	// npx-style wrappers leave children holding the output pipes after the
	// parent dies; don't let that stall Run past cancellation.
	cmd.WaitDelay = 3 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if d.Stdout != nil {
		cmd.Stdout = io.MultiWriter(&stdout, d.Stdout)
	}
	if d.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, d.Stderr)
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "deploy canceled")
		}
		return nil, commandError(err, stderr.String(), stdout.String())
	}

	return parseOutput(stdout.String()), nil
}

// buildArgs assembles the wrangler deploy argv for a request
func buildArgs(req *Request) []string {
	args := []string{"deploy", req.Entry, "--name", req.Name}
	if req.Env != "" {
		args = append(args, "--env", req.Env)
	}
	if req.CompatibilityDate != "" {
		args = append(args, "--compatibility-date", req.CompatibilityDate)
	}
	for _, flag := range req.CompatibilityFlags {
		args = append(args, "--compatibility-flag", flag)
	}
	if req.Minify {
		args = append(args, "--minify")
	}
	if req.NoBundle {
		args = append(args, "--no-bundle")
	}
	if req.DryRun {
		args = append(args, "--dry-run")
	}
	if req.Assets != "" {
		args = append(args, "--assets", req.Assets)
	}
	if req.Site != "" {
		args = append(args, "--site", req.Site)
	}
	return args
}

// commandEnv overlays the resolved identity onto the inherited environment
func commandEnv(req *Request) []string {
	env := os.Environ()
	if req.APIToken != "" {
		env = append(env, config.EnvAPIToken+"="+req.APIToken)
	}
	if req.AccountID != "" {
		env = append(env, config.EnvAccountID+"="+req.AccountID)
	}
	return env
}

// commandError condenses subprocess failure into one actionable error.
// The last meaningful stderr line usually carries the wrangler diagnostic.
func commandError(err error, stderr, stdout string) error {
	if line := lastLine(stderr); line != "" {
		return errors.Wrap(err, line)
	}
	if line := lastLine(stdout); line != "" {
		return errors.Wrap(err, line)
	}
	return errors.Wrap(err, "deploy command")
}

// lastLine returns the last non-empty line of s
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
