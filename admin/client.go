// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/adminbot/lib/clock"
	"github.com/bureau-foundation/adminbot/lib/netutil"
	"github.com/bureau-foundation/adminbot/lib/ref"
	"github.com/bureau-foundation/adminbot/lib/secret"
	"github.com/bureau-foundation/adminbot/messaging"
)

// maxAttempts is how many times a request is tried before giving up.
// Admin operations are the irreversible tail of a command: a password
// has already been generated, a confirmation already given. Retrying
// hard here is cheaper than making the operator re-run the command.
const maxAttempts = 10

// backoffStep is the base wait between attempts. The wait grows
// linearly: step after the first failure, twice that after the second,
// and so on.
const backoffStep = 500 * time.Millisecond

// usersPageLimit is the page size for the user directory listing.
const usersPageLimit = 250

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the homeserver (e.g., "https://matrix.example.org").
	HomeserverURL string
	// AccessToken is the admin account's access token. The buffer is
	// read on every request but not closed; the caller retains ownership.
	AccessToken *secret.Buffer
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Clock drives retry backoff waits. If nil, the real clock is used.
	Clock clock.Clock
	// RequestsPerSecond caps the request rate across all operations.
	// Zero means no limit.
	RequestsPerSecond float64
}

// Client is a Synapse admin API client.
type Client struct {
	baseURL     string
	accessToken *secret.Buffer
	httpClient  *http.Client
	logger      *slog.Logger
	clk         clock.Clock
	limiter     *rate.Limiter
}

// NewClient creates a Synapse admin API client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("admin: HomeserverURL is required")
	}
	if config.AccessToken == nil {
		return nil, fmt.Errorf("admin: AccessToken is required")
	}
	if _, err := url.Parse(config.HomeserverURL); err != nil {
		return nil, fmt.Errorf("admin: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &Client{
		baseURL:     strings.TrimRight(config.HomeserverURL, "/"),
		accessToken: config.AccessToken,
		httpClient:  httpClient,
		logger:      logger,
		clk:         clk,
		limiter:     rate.NewLimiter(limit, 1),
	}, nil
}

// ListDevices returns the target user's registered devices.
func (c *Client) ListDevices(ctx context.Context, userID ref.UserID) ([]Device, error) {
	path := "/_synapse/admin/v2/users/" + url.PathEscape(userID.String()) + "/devices"
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("admin: list devices for %q failed: %w", userID, err)
	}

	var response devicesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("admin: failed to parse devices response: %w", err)
	}
	return response.Devices, nil
}

// ResetPassword changes the target user's password. When logoutDevices
// is true, all of the user's access tokens are invalidated immediately.
//
// Corresponds to POST /_synapse/admin/v1/reset_password/{user_id}.
func (c *Client) ResetPassword(ctx context.Context, userID ref.UserID, newPassword *secret.Buffer, logoutDevices bool) error {
	if newPassword == nil {
		return fmt.Errorf("admin: new password is required")
	}
	path := "/_synapse/admin/v1/reset_password/" + url.PathEscape(userID.String())
	// Password is converted to string at the JSON serialization boundary.
	requestBody := map[string]any{
		"new_password":   newPassword.String(),
		"logout_devices": logoutDevices,
	}

	if _, err := c.doRequest(ctx, http.MethodPost, path, nil, requestBody); err != nil {
		return fmt.Errorf("admin: reset password for %q failed: %w", userID, err)
	}
	return nil
}

// DeactivateAccount permanently deactivates the target account. The
// user's access tokens are invalidated and the account can no longer
// log in. When erase is true, the server also removes the user's
// display name, avatar, and other profile data.
//
// Corresponds to POST /_synapse/admin/v1/deactivate/{user_id}.
func (c *Client) DeactivateAccount(ctx context.Context, userID ref.UserID, erase bool) error {
	path := "/_synapse/admin/v1/deactivate/" + url.PathEscape(userID.String())
	requestBody := map[string]any{
		"erase": erase,
	}

	if _, err := c.doRequest(ctx, http.MethodPost, path, nil, requestBody); err != nil {
		return fmt.Errorf("admin: deactivate %q failed: %w", userID, err)
	}
	return nil
}

// SetAccountValidity sets the target account's expiration timestamp.
//
// Corresponds to POST /_synapse/admin/v1/account_validity/validity.
func (c *Client) SetAccountValidity(ctx context.Context, userID ref.UserID, expiration time.Time, enableRenewalEmails bool) error {
	requestBody := map[string]any{
		"user_id":               userID,
		"expiration_ts":         expiration.UnixMilli(),
		"enable_renewal_emails": enableRenewalEmails,
	}

	if _, err := c.doRequest(ctx, http.MethodPost, "/_synapse/admin/v1/account_validity/validity", nil, requestBody); err != nil {
		return fmt.Errorf("admin: set account validity for %q failed: %w", userID, err)
	}
	return nil
}

// SendServerNotice delivers a server notice to the target user. The
// homeserver creates (or reuses) the user's server notices room and
// posts the message there. Returns the notice event ID.
//
// Corresponds to POST /_synapse/admin/v1/send_server_notice.
func (c *Client) SendServerNotice(ctx context.Context, userID ref.UserID, body string) (ref.EventID, error) {
	requestBody := map[string]any{
		"user_id": userID,
		"content": map[string]any{
			"msgtype": "m.text",
			"body":    body,
		},
	}

	responseBody, err := c.doRequest(ctx, http.MethodPost, "/_synapse/admin/v1/send_server_notice", nil, requestBody)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("admin: send server notice to %q failed: %w", userID, err)
	}

	var response serverNoticeResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("admin: failed to parse server notice response: %w", err)
	}
	return response.EventID, nil
}

// ListUsers returns all accounts on the homeserver, following the
// pagination token until the directory is exhausted. Guest accounts
// are excluded.
//
// Corresponds to GET /_synapse/admin/v2/users.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	from := ""
	for {
		query := url.Values{}
		query.Set("limit", fmt.Sprintf("%d", usersPageLimit))
		query.Set("guests", "false")
		if from != "" {
			query.Set("from", from)
		}

		body, err := c.doRequest(ctx, http.MethodGet, "/_synapse/admin/v2/users", query, nil)
		if err != nil {
			return nil, fmt.Errorf("admin: list users failed: %w", err)
		}

		var page usersPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("admin: failed to parse users response: %w", err)
		}
		users = append(users, page.Users...)
		if page.NextToken == "" {
			return users, nil
		}
		from = page.NextToken
	}
}

// doRequest performs one admin API call with rate limiting and retry.
// Transient failures (connection errors, 429, 5xx) are retried up to
// maxAttempts with linear backoff; other failures return immediately
// as *messaging.MatrixError.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, requestBody any) ([]byte, error) {
	var encoded []byte
	if requestBody != nil {
		var err error
		encoded, err = json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			// Linear backoff: step, 2*step, 3*step, ...
			wait := time.Duration(attempt-1) * backoffStep
			c.logger.Warn("admin request failed, retrying",
				"method", method,
				"path", path,
				"attempt", attempt,
				"wait", wait,
				"error", lastErr,
			)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.attempt(ctx, method, path, query, encoded)
		if err == nil {
			return body, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}

// attempt performs a single HTTP round-trip.
func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, encoded []byte) ([]byte, error) {
	requestURL := c.baseURL + path
	if query != nil {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if encoded != nil {
		bodyReader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if encoded != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Authorization", "Bearer "+c.accessToken.String())

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	var matrixErr messaging.MatrixError
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil {
		return nil, fmt.Errorf("unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	matrixErr.StatusCode = response.StatusCode
	return nil, &matrixErr
}

// retryable reports whether an attempt error is transient. Rate limits
// and server errors are; other API errors (forbidden, not found,
// invalid parameters) will not improve with repetition.
func retryable(err error) bool {
	var matrixErr *messaging.MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.StatusCode == http.StatusTooManyRequests || matrixErr.StatusCode >= 500
	}
	// Connection-level failure: no HTTP response at all.
	return true
}

// sleep waits for the backoff duration, bounded by ctx.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-c.clk.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
