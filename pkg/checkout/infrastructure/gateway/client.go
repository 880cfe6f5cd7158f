// Package gateway is the HTTP client for the mobile-money push-payment
// provider. Responses are decoded into loose maps because the provider's
// field names and value encodings vary; classification happens in the domain.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"checkout/pkg/checkout/domain/model"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

type initiateRequest struct {
	PhoneNumber      string `json:"phone_number"`
	Amount           int64  `json:"amount"`
	AccountReference string `json:"account_reference"`
}

func (c *Client) InitiatePush(ctx context.Context, req model.PaymentRequest) (map[string]any, error) {
	body, err := json.Marshal(initiateRequest{
		PhoneNumber:      req.Phone,
		Amount:           req.Amount,
		AccountReference: req.Reference,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal initiate request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments/mpesa/initiate", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build initiate request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return c.do(httpReq)
}

func (c *Client) QueryStatus(ctx context.Context, transactionID string) (map[string]any, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/status/"+transactionID, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build status request")
	}

	payload, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	// An error field in an otherwise well-formed response signals a
	// gateway-side failure, not a payment outcome.
	if msg, ok := payload["error"].(string); ok && msg != "" {
		return nil, errors.Wrap(model.ErrGatewayConfiguration, msg)
	}
	return payload, nil
}

func (c *Client) do(req *http.Request) (map[string]any, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "gateway request")
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.WithError(cerr).Warn("close gateway response body")
		}
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.Wrapf(model.ErrGatewayConfiguration, "gateway returned %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, model.ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode gateway response")
	}
	return payload, nil
}
