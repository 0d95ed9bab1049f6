package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v2"

	"workerwatch/internal/errors"
)

// EnvAPIToken and EnvAccountID are honored before any persisted credentials.
const (
	EnvAPIToken  = "CLOUDFLARE_API_TOKEN"
	EnvAccountID = "CLOUDFLARE_ACCOUNT_ID"
)

// Auth is the persisted credential file under the user config directory
type Auth struct {
	APIToken  string `yaml:"api_token"`
	SavedAt   string `yaml:"saved_at,omitempty"`
	AccountID string `yaml:"account_id,omitempty"`
}

// AuthPath returns the location of the persisted credential file
func AuthPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolving user config directory")
	}
	return filepath.Join(dir, "workerwatch", "auth.yaml"), nil
}

// LoadToken resolves the API token: environment first, then the auth file.
// Returns ErrNoToken when neither is set.
func LoadToken() (string, error) {
	if token := os.Getenv(EnvAPIToken); token != "" {
		return token, nil
	}

	path, err := AuthPath()
	if err != nil {
		return "", err
	}

	//nolint:gosec // G304: path is derived from the user config directory
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.ErrNoToken
		}
		return "", errors.Wrap(err, "reading auth file")
	}

	var auth Auth
	if err := yaml.Unmarshal(data, &auth); err != nil {
		return "", errors.Wrap(err, "parsing auth file")
	}
	if auth.APIToken == "" {
		return "", errors.ErrNoToken
	}
	return auth.APIToken, nil
}

// SaveToken persists the API token with owner-only permissions
func SaveToken(token string) error {
	path, err := AuthPath()
	if err != nil {
		return err
	}

	auth := Auth{
		APIToken: token,
		SavedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	data, err := yaml.Marshal(&auth)
	if err != nil {
		return errors.Wrap(err, "encoding auth file")
	}
	return atomicWrite(path, data, 0o600)
}

// ClearToken removes the persisted credential file
func ClearToken() error {
	path, err := AuthPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing auth file")
	}
	return nil
}

// atomicWrite writes data through a temp file and renames it into place
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrap(err, "creating directory")
	}

	tmpFile, err := os.CreateTemp(dir, "tmp-")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpPath := tmpFile.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return errors.Wrap(err, "writing temp file")
	}
	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return errors.Wrap(err, "setting permissions")
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}

	return renameWithRetry(tmpPath, path)
}

// renameWithRetry handles the Windows rename-over-existing quirk
func renameWithRetry(src, dst string) error {
	const maxRetries = 5
	const retryDelay = 10 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if runtime.GOOS == "windows" {
			_ = os.Remove(dst)
		}

		err := os.Rename(src, dst)
		if err == nil {
			return nil
		}
		lastErr = err

		if runtime.GOOS != "windows" {
			return lastErr
		}
		time.Sleep(retryDelay * time.Duration(i+1))
	}

	return lastErr
}
