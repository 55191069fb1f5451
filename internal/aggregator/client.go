package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pitopup/pitopup/pkg/logger"
)

const (
	// acceptHeader pins the top-ups API version.
	acceptHeader = "application/com.reloadly.topups-v1+json"
	// tokenRefreshMargin is how long before expiry a cached token is replaced.
	tokenRefreshMargin = 60 * time.Second
	maxErrorBody       = 4096
)

type Config struct {
	AuthURL      string
	BaseURL      string
	Audience     string
	ClientID     string
	ClientSecret string
	// Timeout bounds every HTTP exchange. Zero means 30s.
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing API calls. Zero disables throttling.
	RequestsPerSecond float64
}

// Client talks to the Reloadly top-ups API. It caches the OAuth bearer token
// and is safe for concurrent use.
type Client struct {
	logger *logger.Logger

	authURL      string
	baseURL      string
	audience     string
	clientID     string
	clientSecret string

	httpClient *http.Client
	limiter    *rate.Limiter

	// tokenMu serializes the refresh-or-reuse decision.
	tokenMu   sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

func NewClient(cfg Config, logger *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	audience := cfg.Audience
	if audience == "" {
		audience = cfg.BaseURL
	}
	return &Client{
		logger:       logger,
		authURL:      cfg.AuthURL,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		audience:     audience,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      limiter,
		now:          time.Now,
	}
}

// ListOperators returns the operators of a country in server order.
func (c *Client) ListOperators(ctx context.Context, countryCode string) ([]Operator, error) {
	var operators []Operator
	path := "/operators/countries/" + url.PathEscape(strings.ToUpper(countryCode))
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &operators); err != nil {
		return nil, err
	}
	return operators, nil
}

func (c *Client) GetOperator(ctx context.Context, operatorID int64) (*Operator, error) {
	var operator Operator
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/operators/%d", operatorID), nil, &operator); err != nil {
		return nil, err
	}
	return &operator, nil
}

// SubmitTopup sends airtime to the recipient. No retry is attempted.
func (c *Client) SubmitTopup(ctx context.Context, req TopupRequest) (*Topup, error) {
	var topup Topup
	if err := c.doRequest(ctx, http.MethodPost, "/topups", req, &topup); err != nil {
		return nil, err
	}
	c.logger.Info("Top-up submitted",
		"transaction_id", topup.TransactionID,
		"status", topup.Status,
		"custom_identifier", req.CustomIdentifier)
	return &topup, nil
}

func (c *Client) GetTopupStatus(ctx context.Context, transactionID int64) (*Topup, error) {
	var topup Topup
	path := fmt.Sprintf("/topups/reports/transactions/%d", transactionID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &topup); err != nil {
		return nil, err
	}
	return &topup, nil
}

// accessToken returns the cached bearer token, fetching a new one when none
// is cached or the cached one expires within tokenRefreshMargin.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt.Add(-tokenRefreshMargin)) {
		return c.token, nil
	}

	payload, err := json.Marshal(tokenRequest{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		GrantType:    "client_credentials",
		Audience:     c.audience,
	})
	if err != nil {
		return "", &AuthError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewReader(payload))
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &AuthError{StatusCode: resp.StatusCode, Err: errors.New(errorMessage(body))}
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", &AuthError{Err: fmt.Errorf("decode token response: %w", err)}
	}
	if token.AccessToken == "" {
		return "", &AuthError{Err: errors.New("empty access token")}
	}

	c.token = token.AccessToken
	c.expiresAt = c.now().Add(time.Duration(token.ExpiresIn) * time.Second)
	c.logger.Debug("Aggregator token refreshed", "expires_at", c.expiresAt)
	return c.token, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Method: method, Path: path, Err: fmt.Errorf("marshal body: %w", err)}
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		c.logger.Warn("Aggregator request failed",
			"method", method, "path", path, "status", resp.StatusCode, "code", apiErr.ErrorCode)
		return &RequestError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Code:       apiErr.ErrorCode,
			Message:    apiErr.Message,
			Err:        errors.New(errorMessage(raw)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func errorMessage(body []byte) string {
	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return "empty response body"
}
