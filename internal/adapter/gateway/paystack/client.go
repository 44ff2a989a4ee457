// Package paystack implements ports.GatewayClient against the Paystack
// transaction API. Amounts are passed through in minor currency units,
// which is also Paystack's native unit.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vidpay/config"
	"vidpay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPClient is the transport boundary; *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the gateway's REST API.
type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	http        HTTPClient
	log         zerolog.Logger
}

// NewClient creates a gateway client with a bounded request timeout.
func NewClient(cfg config.GatewayConfig, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		secretKey:   cfg.SecretKey,
		callbackURL: cfg.CallbackURL,
		http:        &http.Client{Timeout: timeout},
		log:         log,
	}
}

// NewClientWithHTTP creates a gateway client over a caller-supplied transport.
func NewClientWithHTTP(cfg config.GatewayConfig, httpClient HTTPClient, log zerolog.Logger) *Client {
	c := NewClient(cfg, log)
	c.http = httpClient
	return c
}

type initRequestBody struct {
	Reference   string         `json:"reference"`
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency,omitempty"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type initResponseBody struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type verifyResponseBody struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		Amount          int64  `json:"amount"`
		Currency        string `json:"currency"`
		GatewayResponse string `json:"gateway_response"`
		Authorization   struct {
			AuthorizationCode string `json:"authorization_code"`
		} `json:"authorization"`
	} `json:"data"`
}

// InitializeTransaction creates a checkout session and returns the redirect
// URL the client completes payment at.
func (c *Client) InitializeTransaction(ctx context.Context, req ports.GatewayInitRequest) (*ports.GatewayInitResponse, error) {
	body := initRequestBody{
		Reference:   req.Reference,
		Email:       req.Email,
		Amount:      req.Amount,
		Currency:    req.Currency,
		CallbackURL: c.callbackURL,
	}
	if req.Metadata.ContentID != uuid.Nil {
		body.Metadata = map[string]any{
			"content_id":   req.Metadata.ContentID.String(),
			"content_type": string(req.Metadata.ContentType),
		}
	}

	var out initResponseBody
	if err := c.post(ctx, "/transaction/initialize", body, &out); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("gateway rejected initialize: %s", out.Message)
	}

	c.log.Debug().
		Str("reference", out.Data.Reference).
		Msg("gateway transaction initialized")

	return &ports.GatewayInitResponse{
		AuthorizationURL: out.Data.AuthorizationURL,
		AccessCode:       out.Data.AccessCode,
		Reference:        out.Data.Reference,
	}, nil
}

// VerifyTransaction fetches the authoritative charge state for a reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*ports.GatewayCharge, error) {
	var out verifyResponseBody
	if err := c.get(ctx, "/transaction/verify/"+reference, &out); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("gateway rejected verify: %s", out.Message)
	}

	return &ports.GatewayCharge{
		Reference:         out.Data.Reference,
		Status:            out.Data.Status,
		Amount:            out.Data.Amount,
		Currency:          out.Data.Currency,
		GatewayMessage:    out.Data.GatewayResponse,
		AuthorizationCode: out.Data.Authorization.AuthorizationCode,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway call %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("gateway call %s: status %d", req.URL.Path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
