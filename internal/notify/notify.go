// Package notify delivers deploy outcomes to external channels. Delivery
// is best-effort: the watch loop never waits on or fails because of a
// notification.
package notify

import (
	"context"
	"errors"

	"workerwatch/internal/config"
	"workerwatch/internal/deploy"
)

// Event is one settled deploy outcome offered to notifiers
type Event struct {
	Worker  string
	Outcome *deploy.Outcome
	// Recovered marks a success directly following a failure
	Recovered bool
}

// Notifier delivers one event to a channel
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Policy decides which settled outcomes are worth a notification.
// Failures always are. Successes only when they recover from a failure,
// unless All is set.
type Policy struct {
	All bool
}

// PolicyFromConfig maps the notify_on config value to a policy
func PolicyFromConfig(notifyOn string) Policy {
	return Policy{All: notifyOn == "all"}
}

// Wants reports whether an outcome with the given success state should
// be delivered
func (p Policy) Wants(ok, recovered bool) bool {
	if !ok {
		return true
	}
	return p.All || recovered
}

// Multi fans one event out to several notifiers. Every notifier is
// attempted; errors are collected, not short-circuited.
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the configured notifier stack. Returns nil when no
// channel is configured.
func FromConfig(cfg config.Notifications) (Notifier, error) {
	var notifiers Multi

	if cfg.DiscordWebhook != "" {
		d, err := NewDiscord(cfg.DiscordWebhook)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, d)
	}
	if cfg.Email != nil && cfg.Email.Host != "" {
		notifiers = append(notifiers, NewEmail(*cfg.Email))
	}

	if len(notifiers) == 0 {
		return nil, nil
	}
	return notifiers, nil
}
