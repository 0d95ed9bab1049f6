package api

import (
	"context"
	"fmt"

	"workerwatch/internal/errors"
)

// TokenStatus is the result of GET /user/tokens/verify
type TokenStatus struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ExpiresOn string `json:"expires_on,omitempty"`
}

// Active reports whether the token is usable
func (t *TokenStatus) Active() bool {
	return t.Status == "active"
}

// VerifyToken checks the configured token against the API
func (c *Client) VerifyToken(ctx context.Context) (*TokenStatus, error) {
	var status TokenStatus
	if err := c.get(ctx, "/user/tokens/verify", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Account is one entry of GET /accounts
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Accounts lists the accounts visible to the token
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := c.get(ctx, "/accounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ResolveAccountID returns the account the token can deploy to. Ambiguity
// (zero or several visible accounts) is reported as ErrNoAccountID wrapped
// with a hint; callers decide whether that is fatal.
func (c *Client) ResolveAccountID(ctx context.Context) (string, error) {
	accounts, err := c.Accounts(ctx)
	if err != nil {
		return "", err
	}
	switch len(accounts) {
	case 0:
		return "", fmt.Errorf("token sees no accounts: %w", errors.ErrNoAccountID)
	case 1:
		return accounts[0].ID, nil
	default:
		names := make([]string, 0, len(accounts))
		for _, a := range accounts {
			names = append(names, fmt.Sprintf("%s (%s)", a.Name, a.ID))
		}
		return "", fmt.Errorf("token sees %d accounts, set account_id to one of %v: %w", len(accounts), names, errors.ErrNoAccountID)
	}
}

// Subdomain returns the workers.dev subdomain of an account
func (c *Client) Subdomain(ctx context.Context, accountID string) (string, error) {
	var result struct {
		Subdomain string `json:"subdomain"`
	}
	path := fmt.Sprintf("/accounts/%s/workers/subdomain", accountID)
	if err := c.get(ctx, path, &result); err != nil {
		return "", err
	}
	return result.Subdomain, nil
}

// Tail is a live log session created on a worker
type Tail struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

// CreateTail starts a log tail session for a worker script
func (c *Client) CreateTail(ctx context.Context, accountID, script string) (*Tail, error) {
	var tail Tail
	path := fmt.Sprintf("/accounts/%s/workers/scripts/%s/tails", accountID, script)
	if err := c.post(ctx, path, nil, &tail); err != nil {
		return nil, err
	}
	return &tail, nil
}

// DeleteTail tears a log tail session down
func (c *Client) DeleteTail(ctx context.Context, accountID, script, tailID string) error {
	path := fmt.Sprintf("/accounts/%s/workers/scripts/%s/tails/%s", accountID, script, tailID)
	return c.delete(ctx, path, nil)
}
