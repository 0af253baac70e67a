// Package githubapi is a minimal client for the GitHub App REST endpoints:
// listing installations, minting installation access tokens, and revoking
// them. It works against api.github.com and GitHub Enterprise Server.
package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alecthomas/errors"
)

const (
	acceptHeaderValue = "application/vnd.github.v3+json"
	apiVersionValue   = "2022-11-28"
	userAgentValue    = "github.com/block/ghtoken"
)

// Endpoint maps a hostname to its REST API base URL. api.github.com is the
// public API; any other host is assumed to be a GitHub Enterprise Server,
// which serves its API under /api/v3.
func Endpoint(hostname string) string {
	if hostname == "" || hostname == "api.github.com" {
		return "https://api.github.com"
	}
	return fmt.Sprintf("https://%s/api/v3", hostname)
}

// Installation is one installation of a GitHub App.
type Installation struct {
	ID      int64   `json:"id"`
	AppID   int64   `json:"app_id,omitempty"`
	Account Account `json:"account,omitzero"`
}

// Account is the user or organisation an app is installed on.
type Account struct {
	Login string `json:"login,omitempty"`
}

// InstallationToken is a short-lived access token scoped to one installation.
type InstallationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LogValue implements [log/slog.LogValuer] so the token never appears in logs.
func (t InstallationToken) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("token", "REDACTED"),
		slog.Time("expires_at", t.ExpiresAt),
	)
}

// Client issues authenticated calls against one GitHub API base URL.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the given API base URL, normally the result of
// [Endpoint].
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// ListInstallations returns the installations visible to the app identified
// by the JWT. Zero installations is a valid, empty result.
func (c *Client) ListInstallations(ctx context.Context, appJWT string) ([]Installation, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/app/installations", "Bearer "+appJWT, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list installations")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read installations response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(statusError(resp.StatusCode, data), "failed to list installations")
	}

	var installations []Installation
	if err := json.Unmarshal(data, &installations); err != nil {
		return nil, errors.Wrap(err, "failed to decode installations response")
	}

	return installations, nil
}

// CreateInstallationToken mints an access token for one installation.
func (c *Client) CreateInstallationToken(ctx context.Context, appJWT string, installationID int64) (InstallationToken, error) {
	url := c.baseURL + "/app/installations/" + strconv.FormatInt(installationID, 10) + "/access_tokens"
	req, err := c.newRequest(ctx, http.MethodPost, url, "Bearer "+appJWT, bytes.NewReader([]byte("{}")))
	if err != nil {
		return InstallationToken{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return InstallationToken{}, errors.Wrap(err, "failed to create app token")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return InstallationToken{}, errors.Wrap(err, "failed to read token response")
	}

	if resp.StatusCode != http.StatusCreated {
		return InstallationToken{}, errors.Wrap(statusError(resp.StatusCode, data), "failed to create app token")
	}

	var token InstallationToken
	if err := json.Unmarshal(data, &token); err != nil {
		return InstallationToken{}, errors.Wrap(err, "failed to decode token response")
	}
	if token.Token == "" {
		return InstallationToken{}, errors.New("failed to create app token: response has no token")
	}

	return token, nil
}

// RevokeToken revokes an installation access token and returns the HTTP
// status GitHub responded with. A non-204 status is the caller's decision to
// report; only transport failures are errors.
func (c *Client) RevokeToken(ctx context.Context, token string) (int, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, c.baseURL+"/installation/token", "Token "+token, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "failed to revoke token")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, method, url, authorization string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", acceptHeaderValue)
	req.Header.Set("X-Github-Api-Version", apiVersionValue)
	req.Header.Set("User-Agent", userAgentValue)
	req.Header.Set("Authorization", authorization)
	return req, nil
}

// statusError builds an error for a non-success API status, including
// GitHub's message when the body carries one.
func statusError(status int, data []byte) error {
	var errResp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Message != "" {
		return errors.Errorf("GitHub API returned status %d: %s", status, errResp.Message)
	}
	return errors.Errorf("GitHub API returned status %d", status)
}
