// Package pspclient notifies the payment service provider of transaction
// outcomes and receives the merchant-facing redirect target in return.
package pspclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type CallbackRequest struct {
	Stan                string    `json:"stan"`
	GlobalTransactionID string    `json:"globalTransactionId"`
	Status              string    `json:"status"`
	FailureReason       string    `json:"failureReason,omitempty"`
	AcquirerTimestamp   time.Time `json:"acquirerTimestamp"`
}

type CallbackResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

// NotifyOutcome posts the callback. The returned redirect URL routes the
// payer back to the merchant; an empty URL means the caller shows the
// outcome in place.
func (c *Client) NotifyOutcome(ctx context.Context, req CallbackRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode callback request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payment/callback", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build callback request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	var callbackResp CallbackResponse
	if err := json.NewDecoder(resp.Body).Decode(&callbackResp); err != nil {
		return "", fmt.Errorf("failed to decode callback response: %w", err)
	}

	c.logger.Info("PSP callback delivered",
		zap.String("stan", req.Stan),
		zap.String("status", req.Status),
		zap.String("redirect_url", callbackResp.RedirectURL),
	)
	return callbackResp.RedirectURL, nil
}
