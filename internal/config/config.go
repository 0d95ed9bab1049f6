//nolint:revive // Config struct field names match the YAML schema
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"workerwatch/internal/errors"
	"workerwatch/internal/log"
)

const (
	// DefaultFileName is the project configuration file looked up in the
	// project root when --config is not given.
	DefaultFileName = "workerwatch.yaml"

	// StateDir is the per-project directory holding the state database,
	// daemon PID file, log file and control socket.
	StateDir = ".workerwatch"

	DefaultDeployCommand = "wrangler"
	DefaultDebounce      = 500 * time.Millisecond
)

// Duration wraps time.Duration so YAML values like "500ms" or "2s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Watch holds watch-loop tuning
type Watch struct {
	Debounce Duration `yaml:"debounce,omitempty"`
	Ignore   []string `yaml:"ignore,omitempty"`
}

// Email holds SMTP settings for outcome notifications
type Email struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Notifications configures deploy-outcome notifications
type Notifications struct {
	DiscordWebhook string `yaml:"discord_webhook,omitempty"`
	NotifyOn       string `yaml:"notify_on,omitempty"`
	Email          *Email `yaml:"email,omitempty"`
}

// File is the explicit configuration schema. Unknown top-level keys are
// collected into Extra rather than silently merged into the known fields.
type File struct {
	Name               string        `yaml:"name"`
	Main               string        `yaml:"main"`
	Env                string        `yaml:"env,omitempty"`
	AccountID          string        `yaml:"account_id,omitempty"`
	CompatibilityDate  string        `yaml:"compatibility_date,omitempty"`
	CompatibilityFlags []string      `yaml:"compatibility_flags,omitempty"`
	Minify             bool          `yaml:"minify,omitempty"`
	NoBundle           bool          `yaml:"no_bundle,omitempty"`
	DryRun             bool          `yaml:"dry_run,omitempty"`
	Assets             string        `yaml:"assets,omitempty"`
	Site               string        `yaml:"site,omitempty"`
	DeployCommand      string        `yaml:"deploy_command,omitempty"`
	Watch              Watch         `yaml:"watch,omitempty"`
	Notifications      Notifications `yaml:"notifications,omitempty"`

	// Extra holds unknown top-level keys from the file, kept for diagnostics
	Extra map[string]interface{} `yaml:"-"`

	// Path is where the file was loaded from, empty when built from flags
	Path string `yaml:"-"`
}

// knownKeys enumerates the top-level keys the schema understands
var knownKeys = map[string]bool{
	"name":                true,
	"main":                true,
	"env":                 true,
	"account_id":          true,
	"compatibility_date":  true,
	"compatibility_flags": true,
	"minify":              true,
	"no_bundle":           true,
	"dry_run":             true,
	"assets":              true,
	"site":                true,
	"deploy_command":      true,
	"watch":               true,
	"notifications":       true,
}

// Parse decodes YAML data into the schema and collects unknown keys
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err == nil {
		for key, value := range raw {
			if knownKeys[key] {
				continue
			}
			if f.Extra == nil {
				f.Extra = make(map[string]interface{})
			}
			f.Extra[key] = value
		}
	}

	f.applyDefaults()
	return &f, nil
}

// Load reads the configuration file at path, or DefaultFileName in the
// current directory when path is empty.
func Load(path string) (*File, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultFileName
	}

	//nolint:gosec // G304: path comes from the user's own flag or cwd
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil, errors.Wrapf(errors.ErrConfigNotFound, "no %s in current directory", DefaultFileName)
		}
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	f.Path = path

	if len(f.Extra) > 0 {
		keys := make([]string, 0, len(f.Extra))
		for key := range f.Extra {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		log.Debug("Ignoring unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return f, nil
}

func (f *File) applyDefaults() {
	if f.DeployCommand == "" {
		f.DeployCommand = DefaultDeployCommand
	}
	if f.Watch.Debounce <= 0 {
		f.Watch.Debounce = Duration(DefaultDebounce)
	}
	if f.Notifications.NotifyOn == "" {
		f.Notifications.NotifyOn = "failures"
	}
}

// Validate checks the schema after flag overrides have been applied.
// Violations are startup-fatal for the caller.
func (f *File) Validate() error {
	if f.Name == "" {
		return errors.Wrap(errors.ErrMissingRequired, "name")
	}
	if f.Main == "" {
		return errors.Wrap(errors.ErrMissingRequired, "main")
	}
	if _, err := os.Stat(f.Resolve(f.Main)); err != nil {
		return errors.Wrapf(errors.ErrEntryNotFound, "%s", f.Main)
	}
	if f.Assets != "" {
		if _, err := os.Stat(f.Resolve(f.Assets)); err != nil {
			return errors.Wrapf(errors.ErrInvalidConfig, "assets directory %s does not exist", f.Assets)
		}
	}
	if f.Site != "" {
		if _, err := os.Stat(f.Resolve(f.Site)); err != nil {
			return errors.Wrapf(errors.ErrInvalidConfig, "site directory %s does not exist", f.Site)
		}
	}
	switch f.Notifications.NotifyOn {
	case "failures", "all":
	default:
		return errors.Wrapf(errors.ErrInvalidConfig, "notify_on must be failures or all, got %q", f.Notifications.NotifyOn)
	}
	return nil
}

// Root returns the project root directory the config belongs to
func (f *File) Root() string {
	if f.Path == "" {
		return "."
	}
	dir := filepath.Dir(f.Path)
	if dir == "" {
		return "."
	}
	return dir
}

// Resolve interprets a config-relative path against the project root.
// Paths in the file are relative to the file's directory, not to wherever
// the command happens to run.
func (f *File) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(f.Root(), path)
}

// Write marshals the schema to path using an atomic temp-file rename
func Write(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}
	return atomicWrite(path, data, 0o644)
}
