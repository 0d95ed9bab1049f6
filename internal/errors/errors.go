// Package errors defines sentinel errors shared across workerwatch.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// Authentication errors
	ErrNoToken      = errors.New("no API token configured")
	ErrInvalidToken = errors.New("API token is invalid or expired")

	// Configuration errors
	ErrConfigNotFound  = errors.New("configuration not found")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingRequired = errors.New("missing required field")

	// Deploy errors
	ErrDeployFailed  = errors.New("deploy failed")
	ErrDeployBinary  = errors.New("deploy command not found")
	ErrEntryNotFound = errors.New("entry point not found")
	ErrNoAccountID   = errors.New("account ID could not be resolved")

	// API errors
	ErrAPIConnection = errors.New("API connection failed")
	ErrAPIResponse   = errors.New("invalid API response")
	ErrRateLimited   = errors.New("rate limited")

	// Watcher errors
	ErrWatcherNotRunning = errors.New("watcher not running")

	// Store errors
	ErrKeyNotFound = errors.New("key not found")
)

// Wrap wraps an error with additional context
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is checks if the error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As checks if the error can be unwrapped to the target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
