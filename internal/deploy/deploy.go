// Package deploy executes worker deployments through an external
// wrangler-compatible CLI and normalizes the results.
package deploy

import (
	"context"
	"time"

	"workerwatch/internal/config"
)

// Request describes one deployment of a worker
type Request struct {
	Name               string
	Entry              string
	Env                string
	AccountID          string
	APIToken           string
	CompatibilityDate  string
	CompatibilityFlags []string
	Minify             bool
	NoBundle           bool
	DryRun             bool
	Assets             string
	Site               string
}

// Result is what a successful deploy reports back
type Result struct {
	// VersionID is the platform version identifier, empty when the CLI
	// output did not include one (a dry run, for example).
	VersionID string
	// URLs are the routes the CLI reported the worker as live on.
	URLs []string
}

// Outcome is the normalized record of one settled deploy attempt
type Outcome struct {
	Seq       int
	Cause     string
	Started   time.Time
	Duration  time.Duration
	VersionID string
	URLs      []string
	Err       error
}

// OK reports whether the attempt succeeded
func (o *Outcome) OK() bool {
	return o.Err == nil
}

// Deployer runs a single deployment. Implementations must be safe to call
// sequentially from multiple goroutines; the scheduler guarantees at most
// one call is in flight at a time.
type Deployer interface {
	Deploy(ctx context.Context, req *Request) (*Result, error)
}

// NewRequest maps the resolved configuration to a deploy request
func NewRequest(cfg *config.File, token string) *Request {
	return &Request{
		Name:               cfg.Name,
		Entry:              cfg.Main,
		Env:                cfg.Env,
		AccountID:          cfg.AccountID,
		APIToken:           token,
		CompatibilityDate:  cfg.CompatibilityDate,
		CompatibilityFlags: cfg.CompatibilityFlags,
		Minify:             cfg.Minify,
		NoBundle:           cfg.NoBundle,
		DryRun:             cfg.DryRun,
		Assets:             cfg.Assets,
		Site:               cfg.Site,
	}
}
