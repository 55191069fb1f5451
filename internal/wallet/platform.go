package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pitopup/pitopup/pkg/logger"
)

// Platform is the server side of the wallet network.
type Platform interface {
	Me(ctx context.Context, accessToken string) (*PlatformUser, error)
	GetPayment(ctx context.Context, paymentID string) (*PlatformPayment, error)
	ApprovePayment(ctx context.Context, paymentID string) error
	CompletePayment(ctx context.Context, paymentID, txID string) error
}

// PlatformUser is the /v2/me response.
type PlatformUser struct {
	UID         string `json:"uid"`
	Username    string `json:"username"`
	Credentials struct {
		Scopes []string `json:"scopes"`
	} `json:"credentials"`
}

// PlatformPayment is the /v2/payments/{id} response.
type PlatformPayment struct {
	Identifier string                 `json:"identifier"`
	UserUID    string                 `json:"user_uid"`
	Amount     decimal.Decimal        `json:"amount"`
	Memo       string                 `json:"memo"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// Ref returns the payment's reference metadata, or "".
func (p *PlatformPayment) Ref() string {
	ref, _ := p.Metadata[MetadataRef].(string)
	return ref
}

// PlatformClient calls the Pi Platform REST API.
type PlatformClient struct {
	logger     *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewPlatformClient(baseURL, apiKey string, logger *logger.Logger) *PlatformClient {
	return &PlatformClient{
		logger:  logger,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Me resolves a user access token to an identity.
func (p *PlatformClient) Me(ctx context.Context, accessToken string) (*PlatformUser, error) {
	var user PlatformUser
	if err := p.doRequest(ctx, http.MethodGet, "/v2/me", "Bearer "+accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (p *PlatformClient) GetPayment(ctx context.Context, paymentID string) (*PlatformPayment, error) {
	var payment PlatformPayment
	path := "/v2/payments/" + url.PathEscape(paymentID)
	if err := p.doRequest(ctx, http.MethodGet, path, "Key "+p.apiKey, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (p *PlatformClient) ApprovePayment(ctx context.Context, paymentID string) error {
	path := "/v2/payments/" + url.PathEscape(paymentID) + "/approve"
	return p.doRequest(ctx, http.MethodPost, path, "Key "+p.apiKey, nil, nil)
}

func (p *PlatformClient) CompletePayment(ctx context.Context, paymentID, txID string) error {
	path := "/v2/payments/" + url.PathEscape(paymentID) + "/complete"
	return p.doRequest(ctx, http.MethodPost, path, "Key "+p.apiKey, map[string]string{"txid": txID}, nil)
}

func (p *PlatformClient) doRequest(ctx context.Context, method, path, authorization string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", authorization)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.logger.Warn("Platform request failed", "method", method, "path", path, "status", resp.StatusCode)
		return fmt.Errorf("platform %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode platform response: %w", err)
	}
	return nil
}
